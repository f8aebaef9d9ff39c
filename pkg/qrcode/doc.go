// Package qrcode renders QR codes as PNG bytes or data URIs on top of
// github.com/skip2/go-qrcode. OTPAuthDataURI is the entry point used for
// two-factor provisioning URIs.
//
//	img, err := qrcode.OTPAuthDataURI(provisioning.URI, 256)
//	if err != nil {
//		return err
//	}
//	// <img src="{{ .QRCode }}">
package qrcode
