package qrcode

import (
	"encoding/base64"
	"errors"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

var (
	ErrEmptyContent             = errors.New("content cannot be empty")
	ErrNotOTPAuthURI            = errors.New("content is not an otpauth URI")
	ErrorFailedToGenerateQRCode = errors.New("failed to generate QR code")
)

const (
	DefaultSize = 256

	dataURIPrefix = "data:image/png;base64,"
	otpauthScheme = "otpauth://"
)

// Generate renders content as a size x size PNG with medium error correction.
// A non-positive size falls back to DefaultSize.
func Generate(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, errors.Join(ErrorFailedToGenerateQRCode, err)
	}
	return png, nil
}

// DataURI renders content and returns it as a data:image/png;base64 URI
// suitable for an <img src> attribute.
func DataURI(content string, size int) (string, error) {
	png, err := Generate(content, size)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// OTPAuthDataURI renders a provisioning URI for authenticator apps. Anything that
// is not an otpauth:// URI is rejected so a secret never ends up in an unrelated
// image by mistake.
func OTPAuthDataURI(uri string, size int) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", ErrEmptyContent
	}
	if !strings.HasPrefix(uri, otpauthScheme) {
		return "", ErrNotOTPAuthURI
	}
	return DataURI(uri, size)
}
