// Package ticket generates ticket identities: the human-shareable ticket code
// and the encrypted QR payload derived from it.
package ticket

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// NewCode builds a ticket code of the form TKT-<unix timestamp>-<event id
// prefix>. The code looks deterministic but callers must still collision-check
// it against existing codes before use.
func NewCode(prefix string, ts time.Time, eventID string) string {
	short := eventID
	if len(short) > 8 {
		short = short[:8]
	}
	if prefix == "" {
		prefix = "TKT"
	}
	return fmt.Sprintf("%s-%d-%s", prefix, ts.Unix(), short)
}

// Claim is the payload embedded in a ticket's QR code.
type Claim struct {
	TicketCode     string `json:"ticketCode"`
	RegistrationID string `json:"registrationId"`
	EventID        string `json:"eventId"`
	UserID         string `json:"userId"`
}

// QRGenerator produces AES-encrypted QR payloads for ticket claims.
type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// EncryptedPayload returns the opaque string embedded in the QR image. It is
// also what the API exposes as the registration's qr_code attribute.
func (q *QRGenerator) EncryptedPayload(claim Claim) (string, error) {
	data, err := json.Marshal(claim)
	if err != nil {
		return "", err
	}
	return encryptAES(data, q.secret)
}

// PNG renders the encrypted claim as a 256x256 QR image.
func (q *QRGenerator) PNG(claim Claim) ([]byte, error) {
	payload, err := q.EncryptedPayload(claim)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// Decrypt recovers the claim from a scanned QR payload.
func (q *QRGenerator) Decrypt(payload string) (*Claim, error) {
	data, err := decryptAES(payload, q.secret)
	if err != nil {
		return nil, err
	}
	var claim Claim
	if err := json.Unmarshal(data, &claim); err != nil {
		return nil, fmt.Errorf("invalid QR payload: %w", err)
	}
	return &claim, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(payload string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])

	return data, nil
}
