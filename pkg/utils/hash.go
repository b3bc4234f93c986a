package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HashFile computes the SHA-256 of a file's full content
func HashFile(filepath string) (string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// HashFileQuick computes an xxhash over the first and last chunkSize bytes
// of a file. Equal full-content hashes imply equal quick hashes, so it is a
// cheap prefilter before HashFile.
func HashFileQuick(filepath string, chunkSize int64) (string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", err
	}

	fileSize := fileInfo.Size()
	digest := xxhash.New()

	// Small files are hashed whole
	if fileSize <= chunkSize*2 {
		if _, err := io.Copy(digest, file); err != nil {
			return "", err
		}
		return strconv.FormatUint(digest.Sum64(), 16), nil
	}

	if _, err := io.CopyN(digest, file, chunkSize); err != nil {
		return "", err
	}

	if _, err := file.Seek(-chunkSize, io.SeekEnd); err != nil {
		return "", err
	}
	if _, err := io.CopyN(digest, file, chunkSize); err != nil {
		return "", err
	}

	return strconv.FormatUint(digest.Sum64(), 16), nil
}
