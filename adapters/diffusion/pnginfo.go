package diffusion

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// parametersKey matches the tEXt key A1111 tooling reads generation
// parameters from.
const parametersKey = "parameters"

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// EmbedParameters inserts the generation-parameters blob as a tEXt chunk
// right after the IHDR chunk and returns the rewritten PNG.
func EmbedParameters(png []byte, params string) ([]byte, error) {
	return embedText(png, parametersKey, params)
}

func embedText(png []byte, key, value string) ([]byte, error) {
	// Signature, then at least the IHDR chunk header (length + type).
	if len(png) < len(pngSignature)+8 || !bytes.Equal(png[:len(pngSignature)], pngSignature) {
		return nil, errors.New("not a PNG image")
	}

	ihdrLen := binary.BigEndian.Uint32(png[8:12])
	if string(png[12:16]) != "IHDR" {
		return nil, errors.New("PNG does not start with IHDR")
	}
	// length word + type + data + CRC
	insertAt := len(pngSignature) + 8 + int(ihdrLen) + 4
	if insertAt > len(png) {
		return nil, fmt.Errorf("truncated PNG: IHDR claims %d data bytes", ihdrLen)
	}

	data := make([]byte, 0, len(key)+1+len(value))
	data = append(data, key...)
	data = append(data, 0)
	data = append(data, value...)

	chunk := make([]byte, 0, 12+len(data))
	var word [4]byte
	binary.BigEndian.PutUint32(word[:], uint32(len(data)))
	chunk = append(chunk, word[:]...)
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, data...)

	crc := crc32.NewIEEE()
	crc.Write([]byte("tEXt"))
	crc.Write(data)
	binary.BigEndian.PutUint32(word[:], crc.Sum32())
	chunk = append(chunk, word[:]...)

	out := make([]byte, 0, len(png)+len(chunk))
	out = append(out, png[:insertAt]...)
	out = append(out, chunk...)
	out = append(out, png[insertAt:]...)
	return out, nil
}
