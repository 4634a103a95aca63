// Package manifest reads secrets.yml style manifests, one reference per line
// in the form "<name>: !var <path>".
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// Delimiter separates the variable name from the secret path.
const Delimiter = ": !var"

// maxLineBytes bounds a single manifest line.
const maxLineBytes = 1024 * 1024

var ErrMalformedManifestLine = errors.New("malformed manifest line")

// SecretReference names a remote secret and the variable it is published to.
type SecretReference struct {
	Name string
	Path string
}

// LineError reports a line that contains the delimiter but cannot be split
// into exactly a name and a path.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("failed to retrieve secret name and path from '%s' (line %d): %v", e.Text, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseLine applies the reference rule to a single line. ok is false for
// lines that are not references.
func ParseLine(line string) (ref SecretReference, ok bool, err error) {
	if !strings.Contains(line, Delimiter) {
		return SecretReference{}, false, nil
	}
	segments := strings.Split(line, Delimiter)
	if len(segments) != 2 {
		return SecretReference{}, true, ErrMalformedManifestLine
	}
	return SecretReference{
		Name: strings.TrimSpace(segments[0]),
		Path: strings.TrimSpace(segments[1]),
	}, true, nil
}

// Parse streams the references in the manifest at path. The file is opened
// when iteration starts and closed when it ends; iterating again re-reads it.
// Malformed lines are yielded as *LineError and iteration continues. An
// open or read failure is yielded once and ends the sequence.
func Parse(path string) iter.Seq2[SecretReference, error] {
	return func(yield func(SecretReference, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(SecretReference{}, fmt.Errorf("opening manifest '%s': %w", path, err))
			return
		}
		defer f.Close()

		for ref, err := range ParseReader(f) {
			if !yield(ref, err) {
				return
			}
		}
	}
}

// ParseReader streams the references read from r.
func ParseReader(r io.Reader) iter.Seq2[SecretReference, error] {
	return func(yield func(SecretReference, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			ref, ok, err := ParseLine(line)
			if !ok {
				continue
			}
			if err != nil {
				err = &LineError{Line: lineNo, Text: strings.TrimSpace(line), Err: err}
				if !yield(SecretReference{}, err) {
					return
				}
				continue
			}
			if !yield(ref, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(SecretReference{}, fmt.Errorf("reading manifest: %w", err))
		}
	}
}
