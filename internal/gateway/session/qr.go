package session

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is the pixel width of the rendered pairing image.
const qrImageSize = 256

// qrDataURL renders a pairing challenge as a PNG data URL suitable for an
// <img> src attribute.
func qrDataURL(challenge string) (string, error) {
	png, err := qrcode.Encode(challenge, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
