package chain

import (
	"encoding/base64"

	"github.com/mr-tron/base58"
)

func base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func base58Encode(b []byte) string { return base58.Encode(b) }

func base58Decode(s string) ([]byte, error) { return base58.Decode(s) }
