package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Incremental bodies carry token usage in-band: a record separator byte, a
// JSON object and a newline. Text never contains the separator.
const (
	recordSeparator = 0x1e
	UsageTrailer    = "X-Usage-Tokens"
)

type usageRecord struct {
	UsageTokens int `json:"usageTokens"`
}

// WriteUsage appends a usage record to an incremental body.
func WriteUsage(w io.Writer, tokens int) error {
	b, err := json.Marshal(usageRecord{UsageTokens: tokens})
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+2)
	buf = append(buf, recordSeparator)
	buf = append(buf, b...)
	buf = append(buf, '\n')
	_, err = w.Write(buf)
	return err
}

// SanitizeText strips the separator byte from model text before it is framed.
func SanitizeText(s string) string {
	if !bytes.Contains([]byte(s), []byte{recordSeparator}) {
		return s
	}
	return string(bytes.ReplaceAll([]byte(s), []byte{recordSeparator}, nil))
}

func parseUsage(b []byte) (int, error) {
	var rec usageRecord
	if err := json.Unmarshal(bytes.TrimSpace(b), &rec); err != nil {
		return 0, fmt.Errorf("usage record: %w", err)
	}
	return rec.UsageTokens, nil
}

func parseUsageTrailer(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// demux splits incoming bytes into text and usage records, buffering partial
// records and partial UTF-8 sequences across chunk boundaries.
type demux struct {
	inRecord bool
	record   []byte
	carry    []byte
	onUsage  func(int)
}

// feed returns the complete text contained in p.
func (d *demux) feed(p []byte) []byte {
	var text []byte
	for len(p) > 0 {
		if d.inRecord {
			i := bytes.IndexByte(p, '\n')
			if i < 0 {
				d.record = append(d.record, p...)
				return d.text(text)
			}
			d.record = append(d.record, p[:i]...)
			d.flushRecord()
			p = p[i+1:]
			continue
		}
		i := bytes.IndexByte(p, recordSeparator)
		if i < 0 {
			text = append(text, p...)
			break
		}
		text = append(text, p[:i]...)
		d.inRecord = true
		p = p[i+1:]
	}
	return d.text(text)
}

// text prefixes carried bytes and holds back an incomplete trailing rune.
func (d *demux) text(b []byte) []byte {
	if len(d.carry) > 0 {
		b = append(d.carry, b...)
		d.carry = nil
	}
	complete, rest := splitUTF8(b)
	if len(rest) > 0 {
		d.carry = append([]byte(nil), rest...)
	}
	return complete
}

// close flushes whatever is buffered at end of stream.
func (d *demux) close() []byte {
	if d.inRecord && len(d.record) > 0 {
		d.flushRecord()
	}
	out := d.carry
	d.carry = nil
	return out
}

func (d *demux) flushRecord() {
	if n, err := parseUsage(d.record); err == nil && d.onUsage != nil {
		d.onUsage(n)
	}
	d.record = d.record[:0]
	d.inRecord = false
}
