package message

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/nickmkk/Platibus/pkg/errors"
)

// continuationIndent is emitted before continuation lines on encode. Accept
// any run of whitespace on decode; tab vs space is unspecified by the wire
// format, so we standardize on four spaces when writing.
const continuationIndent = "    "

// EncodeHeaders renders h as the compact RFC-822-style blob used for both
// the queue storage column and the journal's Headers column: one
// "Name: value" line per header in insertion order, with embedded newlines
// in a value continued on indented lines, terminated by a blank line.
func EncodeHeaders(h Headers) []byte {
	var buf bytes.Buffer
	for _, name := range h.Names() {
		value, _ := h.Get(name)
		lines := strings.Split(value, "\n")
		fmt.Fprintf(&buf, "%s: %s\n", name, lines[0])
		for _, cont := range lines[1:] {
			buf.WriteString(continuationIndent)
			buf.WriteString(cont)
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// DecodeHeaders parses a blob produced by EncodeHeaders (or an equivalent
// hand-written block) back into a Headers set. Lines beginning with '#' are
// ignored. A line with no colon, or a colon in the first position, is a
// format error. Decoding stops at the first blank line.
func DecodeHeaders(blob []byte) (Headers, error) {
	h := NewHeaders()
	scanner := bufio.NewScanner(bytes.NewReader(blob))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var currentName string
	var currentValue strings.Builder
	haveCurrent := false

	flush := func() {
		if haveCurrent {
			h.Set(currentName, currentValue.String())
			haveCurrent = false
			currentValue.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > 0 && isWhitespace(line[0]) && haveCurrent {
			currentValue.WriteByte('\n')
			currentValue.WriteString(strings.TrimLeft(line, " \t"))
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return Headers{}, errors.New(errors.CodeInvalidArgument,
				fmt.Sprintf("malformed header line %q: missing or leading colon", line), nil)
		}
		flush()
		currentName = line[:colon]
		value := line[colon+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		currentValue.WriteString(value)
		haveCurrent = true
	}
	flush()

	if err := scanner.Err(); err != nil {
		return Headers{}, errors.Wrap(err, "scan header blob")
	}
	return h, nil
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t'
}
