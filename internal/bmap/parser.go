package bmap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnreadableFile indicates the bmap path could not be opened.
	ErrUnreadableFile = errors.New("bmap: unreadable file")

	// ErrMalformedDocument indicates the document is not well-formed, or a
	// Range element could not be understood.
	ErrMalformedDocument = errors.New("bmap: malformed document")

	// ErrEarlyTermination indicates the document ended before the block map
	// was fully read.
	ErrEarlyTermination = errors.New("bmap: document terminated early")
)

// Parser decodes bmap documents. The zero value parses leniently and logs
// nothing; set Log to surface default substitutions at warning level.
type Parser struct {
	// Strict promotes the format's documented leniencies (numeric fields
	// falling back to defaults, mapped-count mismatches) to hard errors.
	Strict bool

	Log *slog.Logger
}

// Parse opens and decodes the bmap file at path.
func (p *Parser) Parse(path string) (*Bmap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}
	defer f.Close()
	return p.Decode(f)
}

// Parse decodes the bmap file at path with a default lenient parser.
func Parse(path string) (*Bmap, error) {
	return (&Parser{}).Parse(path)
}

// Decode reads one bmap document from r.
//
// Recognized elements are case-sensitive: ImageSize, BlockSize, BlocksCount,
// MappedBlocksCount, ChecksumType, and Range elements nested in a single
// BlockMap element. Everything else is skipped.
func (p *Parser) Decode(r io.Reader) (*Bmap, error) {
	bm := &Bmap{
		BlockSize:    DefaultBlockSize,
		ChecksumType: DefaultChecksumType,
	}

	dec := xml.NewDecoder(r)
	depth := 0
	blockMapDepth := -1
	sawBlockMap := false
	closedBlockMap := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if isTruncation(err) {
				return nil, fmt.Errorf("%w: %v", ErrEarlyTermination, err)
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch t.Name.Local {
			case "ImageSize":
				if bm.ImageSize, err = p.scalar(dec, &t, "ImageSize", 0); err != nil {
					return nil, err
				}
				depth--
			case "BlockSize":
				v, err := p.scalar(dec, &t, "BlockSize", DefaultBlockSize)
				if err != nil {
					return nil, err
				}
				if v > 0 {
					bm.BlockSize = v
				}
				depth--
			case "BlocksCount":
				if bm.BlocksCount, err = p.scalar(dec, &t, "BlocksCount", 0); err != nil {
					return nil, err
				}
				depth--
			case "MappedBlocksCount":
				if bm.MappedBlocksCount, err = p.scalar(dec, &t, "MappedBlocksCount", 0); err != nil {
					return nil, err
				}
				depth--
			case "ChecksumType":
				bm.ChecksumType = p.text(dec, &t, DefaultChecksumType)
				depth--
			case "BlockMap":
				sawBlockMap = true
				blockMapDepth = depth
			case "Range":
				if blockMapDepth >= 0 {
					rg, err := decodeRange(dec, &t)
					if err != nil {
						return nil, err
					}
					bm.Ranges = append(bm.Ranges, rg)
					depth--
				}
			}
		case xml.EndElement:
			if depth == blockMapDepth && t.Name.Local == "BlockMap" {
				blockMapDepth = -1
				closedBlockMap = true
			}
			depth--
		}
	}

	if !sawBlockMap || !closedBlockMap {
		return nil, fmt.Errorf("%w: no complete BlockMap element", ErrEarlyTermination)
	}

	sort.Slice(bm.Ranges, func(i, j int) bool {
		return bm.Ranges[i].Start < bm.Ranges[j].Start
	})

	if err := p.checkMappedCount(bm); err != nil {
		return nil, err
	}
	return bm, nil
}

// scalar reads the element's text content as an unsigned integer, falling
// back to def when the text does not parse. The fallback is the format's
// documented leniency for the size fields and is logged at warning level;
// a strict parser turns it into a hard error instead.
func (p *Parser) scalar(dec *xml.Decoder, start *xml.StartElement, name string, def uint64) (uint64, error) {
	s := p.text(dec, start, "")
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		if p.Strict {
			return 0, fmt.Errorf("%w: %s %q is not an unsigned integer",
				ErrMalformedDocument, name, s)
		}
		if p.Log != nil {
			p.Log.Warn("bmap scalar does not parse, using default",
				"element", name, "value", s, "default", def)
		}
		return def, nil
	}
	return v, nil
}

func (p *Parser) text(dec *xml.Decoder, start *xml.StartElement, def string) string {
	var s string
	if err := dec.DecodeElement(&s, start); err != nil {
		return def
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// decodeRange parses one Range element. The text is either a single block
// number or two dash-separated block numbers. Unlike the scalar fields,
// a range that does not parse fails the whole document.
func decodeRange(dec *xml.Decoder, start *xml.StartElement) (Range, error) {
	var el struct {
		Chksum string `xml:"chksum,attr"`
		Text   string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&el, start); err != nil {
		return Range{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	text := strings.TrimSpace(el.Text)
	first, last, ok := splitRangeText(text)
	if !ok {
		return Range{}, fmt.Errorf("%w: bad range %q", ErrMalformedDocument, text)
	}
	if last < first {
		return Range{}, fmt.Errorf("%w: inverted range %q", ErrMalformedDocument, text)
	}
	return Range{Start: first, End: last, Checksum: el.Chksum}, nil
}

func splitRangeText(text string) (first, last uint64, ok bool) {
	lo, hi, dashed := strings.Cut(text, "-")
	first, err := strconv.ParseUint(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if !dashed {
		return first, first, true
	}
	last, err = strconv.ParseUint(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return first, last, true
}

// checkMappedCount compares the declared mapped-block count against the sum
// of the range lengths. Well-formed documents agree; disagreement is
// tolerated (the declared count keeps driving progress math) unless the
// parser is strict.
func (p *Parser) checkMappedCount(bm *Bmap) error {
	var sum uint64
	for _, r := range bm.Ranges {
		sum += r.BlockCount()
	}
	if bm.MappedBlocksCount == sum {
		return nil
	}
	if p.Strict {
		return fmt.Errorf("%w: MappedBlocksCount %d != sum of ranges %d",
			ErrMalformedDocument, bm.MappedBlocksCount, sum)
	}
	if p.Log != nil {
		p.Log.Warn("mapped block count disagrees with range list",
			"declared", bm.MappedBlocksCount, "ranges", sum)
	}
	return nil
}

func isTruncation(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		return strings.Contains(syn.Msg, "unexpected EOF")
	}
	return false
}
