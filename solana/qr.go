package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DepositURI is the Solana Pay style URI a wallet app scans to pay address.
func DepositURI(address string) string {
	return "solana:" + address
}

// GenerateQRCode returns a base64 PNG of the deposit URI for address.
func GenerateQRCode(address string) (string, error) {
	qr, err := qrcode.New(DepositURI(address), qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
