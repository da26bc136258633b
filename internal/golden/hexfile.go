package golden

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samcharles93/smxoffload/pkg/frame"
)

// ParseHexRows reads one row per non-empty line. Each line is a hex
// number that is left-padded with zero bytes to a full 129-byte row.
func ParseHexRows(r io.Reader) ([][]byte, error) {
	var rows [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024), 64*1024)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		if s == "" {
			continue
		}
		if len(s)%2 == 1 {
			s = "0" + s
		}
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(raw) > frame.RowSize {
			trimmed := strings.TrimLeft(s, "0")
			if (len(trimmed)+1)/2 > frame.RowSize {
				return nil, fmt.Errorf("line %d: %w", line, &frame.ShapeError{What: "hex row bytes", Got: len(raw), Want: "<= 129"})
			}
			raw = raw[len(raw)-frame.RowSize:]
		}
		row := make([]byte, frame.RowSize)
		copy(row[frame.RowSize-len(raw):], raw)
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// WriteHexRows writes each row as one line of upper-case hex.
func WriteHexRows(w io.Writer, rows [][]byte) error {
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		if _, err := bw.WriteString(strings.ToUpper(hex.EncodeToString(r))); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadHexFile parses a hex row file.
func ReadHexFile(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseHexRows(f)
}

// WriteHexFile writes rows to path, replacing any existing file.
func WriteHexFile(path string, rows [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteHexRows(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
