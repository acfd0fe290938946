// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Encoding identifies how a recording file is stored on disk.
type Encoding uint8

const (
	EncodingPlain Encoding = iota
	EncodingGzip
	EncodingZstd
	EncodingLZ4
)

func (encoding Encoding) String() string {
	switch encoding {
	case EncodingPlain:
		return "plain"
	case EncodingGzip:
		return "gzip"
	case EncodingZstd:
		return "zstd"
	case EncodingLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("encoding(%d)", encoding)
	}
}

var (
	gzipMagic       = []byte{0x1f, 0x8b}
	zstdMagic       = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic        = []byte{0x04, 0x22, 0x4d, 0x18}
	ageMagic        = []byte("age-encryption.org/")
	ageArmoredMagic = []byte("-----BEGIN AGE ENCRYPTED FILE-----")
)

// ErrNoIdentity is returned when an encrypted file is found and Options
// carries no age identity.
var ErrNoIdentity = errors.New("recording: file is age-encrypted and no identity is configured")

// Options controls how recording files are opened.
type Options struct {
	// Identities decrypt age-encrypted files. Unused for plaintext
	// recordings.
	Identities []age.Identity
}

// LoadIdentities parses an age identity file (one or more
// AGE-SECRET-KEY lines).
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()
	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

// decodedFile is an open recording file with decryption and
// decompression layered on top.
type decodedFile struct {
	io.Reader
	closers []func() error
}

func (file *decodedFile) Close() error {
	var errs []error
	for index := len(file.closers) - 1; index >= 0; index-- {
		if err := file.closers[index](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openDecoded opens path and returns a reader over its plaintext,
// detecting encryption and compression from the leading bytes. It
// returns an error satisfying errors.Is(err, fs.ErrNotExist) when the
// file is absent.
func openDecoded(path string, options Options) (*decodedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoded := &decodedFile{closers: []func() error{file.Close}}

	peeked := bufio.NewReader(file)
	head, _ := peeked.Peek(len(ageArmoredMagic))
	var source io.Reader = peeked

	if bytes.HasPrefix(head, ageMagic) || bytes.HasPrefix(head, ageArmoredMagic) {
		if len(options.Identities) == 0 {
			decoded.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrNoIdentity)
		}
		if bytes.HasPrefix(head, ageArmoredMagic) {
			source = armor.NewReader(source)
		}
		plaintext, err := age.Decrypt(source, options.Identities...)
		if err != nil {
			decoded.Close()
			return nil, fmt.Errorf("decrypting %s: %w", path, err)
		}
		peeked = bufio.NewReader(plaintext)
		source = peeked
		head, _ = peeked.Peek(len(zstdMagic))
	}

	reader, closer, err := decompress(source, head)
	if err != nil {
		decoded.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if closer != nil {
		decoded.closers = append(decoded.closers, closer)
	}
	decoded.Reader = reader
	return decoded, nil
}

// detectEncoding classifies the leading bytes of a plaintext file.
func detectEncoding(head []byte) Encoding {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return EncodingGzip
	case bytes.HasPrefix(head, zstdMagic):
		return EncodingZstd
	case bytes.HasPrefix(head, lz4Magic):
		return EncodingLZ4
	default:
		return EncodingPlain
	}
}

func decompress(source io.Reader, head []byte) (io.Reader, func() error, error) {
	switch detectEncoding(head) {
	case EncodingGzip:
		reader, err := gzip.NewReader(source)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip header: %w", err)
		}
		return reader, reader.Close, nil
	case EncodingZstd:
		decoder, err := zstd.NewReader(source, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd header: %w", err)
		}
		return decoder, func() error { decoder.Close(); return nil }, nil
	case EncodingLZ4:
		return lz4.NewReader(source), nil, nil
	default:
		return source, nil, nil
	}
}
