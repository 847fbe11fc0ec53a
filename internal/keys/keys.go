// Package keys resolves the signing credential used by transaction-send
// operations. Keys are passed through to the external tool untouched; the only
// local use is deriving the sender address for echoed metadata.
package keys

import (
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	xerrors "OpenMCP-Forge/internal/errors"
)

// ErrMissingCredential is returned when neither an explicit key parameter nor
// the configured environment variable provides a signing key.
var ErrMissingCredential = xerrors.New(xerrors.CodeMissingCredential,
	"未提供签名私钥，且默认私钥环境变量为空")

// Source describes where a credential came from.
type Source string

const (
	SourceParameter   Source = "parameter"
	SourceEnvironment Source = "environment"
)

// Credential is a resolved signing key together with its derived address.
type Credential struct {
	PrivateKey string
	Address    string
	Source     Source
}

// Resolve picks the explicit key when present, otherwise falls back to the
// environment variable named by envName. Absence of both is reported as
// ErrMissingCredential without touching any external tool.
func Resolve(explicit, envName string) (Credential, error) {
	key := strings.TrimSpace(explicit)
	source := SourceParameter
	if key == "" && envName != "" {
		key = strings.TrimSpace(os.Getenv(envName))
		source = SourceEnvironment
	}
	if key == "" {
		return Credential{}, ErrMissingCredential
	}

	address, err := deriveAddress(key)
	if err != nil {
		return Credential{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "私钥格式无效")
	}
	return Credential{PrivateKey: key, Address: address, Source: source}, nil
}

func deriveAddress(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X")
	priv, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}
