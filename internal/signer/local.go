package signer

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
)

const (
	EnvPrivateKey           = "KEEPER_EXECUTOR_PRIVATE_KEY"
	EnvPrivateKeyFile       = "KEEPER_EXECUTOR_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "KEEPER_KEYSTORE_PATH"
	EnvKeystorePassword     = "KEEPER_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "KEEPER_KEYSTORE_PASSWORD_FILE"

	KeySourceAuto     = "auto"
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"

	defaultPrivateKeyRelativePath = "keeper/executor.key"
	defaultPrivateKeyHintPath     = "~/.config/keeper/executor.key"
)

type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignTypedData signs the EIP-712 digest of data. The recovery byte is
// returned as 27/28.
func (s *LocalSigner) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	if s == nil || s.privateKey == nil {
		return nil, clierr.New(clierr.CodeSigner, "local signer is not initialized")
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverTypedData returns the address that produced sig over data.
func RecoverTypedData(data apitypes.TypedData, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return common.Address{}, fmt.Errorf("hash typed data: %w", err)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func NewLocalSignerFromEnv(source string) (*LocalSigner, error) {
	return NewLocalSignerFromInputs(source, "")
}

// NewLocalSignerFromInputs loads the executor key from source. A non-empty
// privateKeyOverride is used as-is and bypasses every source.
func NewLocalSignerFromInputs(source, privateKeyOverride string) (*LocalSigner, error) {
	if override := strings.TrimSpace(privateKeyOverride); override != "" {
		return NewLocalSigner(LocalSignerConfig{PrivateKeyHex: override})
	}
	cfg, err := configFromEnv(source)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(cfg)
}

// configFromEnv keeps only the inputs that source is allowed to read.
func configFromEnv(source string) (LocalSignerConfig, error) {
	env := func(name string) string { return strings.TrimSpace(os.Getenv(name)) }
	keyFile := env(EnvPrivateKeyFile)
	if keyFile == "" {
		keyFile = discoverDefaultPrivateKeyFile()
	}
	keystoreCfg := LocalSignerConfig{
		KeystorePath:         env(EnvKeystorePath),
		KeystorePassword:     env(EnvKeystorePassword),
		KeystorePasswordFile: env(EnvKeystorePasswordFile),
	}

	switch strings.ToLower(strings.TrimSpace(source)) {
	case "", KeySourceAuto:
		keystoreCfg.PrivateKeyHex = env(EnvPrivateKey)
		keystoreCfg.PrivateKeyFile = keyFile
		return keystoreCfg, nil
	case KeySourceEnv:
		return LocalSignerConfig{PrivateKeyHex: env(EnvPrivateKey)}, nil
	case KeySourceFile:
		return LocalSignerConfig{PrivateKeyFile: keyFile}, nil
	case KeySourceKeystore:
		return keystoreCfg, nil
	default:
		return LocalSignerConfig{}, clierr.New(clierr.CodeSigner, fmt.Sprintf("unsupported key source %q (expected %s|%s|%s|%s)", source, KeySourceAuto, KeySourceEnv, KeySourceFile, KeySourceKeystore))
	}
}

type LocalSignerConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

// NewLocalSigner loads the first configured key in the order hex, key file,
// keystore.
func NewLocalSigner(cfg LocalSignerConfig) (*LocalSigner, error) {
	pk, err := cfg.load()
	if err != nil {
		return nil, err
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, clierr.New(clierr.CodeSigner, "invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func (cfg LocalSignerConfig) load() (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(cfg.PrivateKeyHex) != "":
		return parseHexKey(cfg.PrivateKeyHex)
	case strings.TrimSpace(cfg.PrivateKeyFile) != "":
		raw, err := readSecret(cfg.PrivateKeyFile, "private key file")
		if err != nil {
			return nil, err
		}
		return parseHexKey(raw)
	case strings.TrimSpace(cfg.KeystorePath) != "":
		return cfg.decryptKeystore()
	default:
		return nil, clierr.New(clierr.CodeSigner, fmt.Sprintf("missing executor key: set %s, %s or %s, or place a hex key at %s", EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, defaultPrivateKeyHintPath))
	}
}

func (cfg LocalSignerConfig) decryptKeystore() (*ecdsa.PrivateKey, error) {
	password := strings.TrimSpace(cfg.KeystorePassword)
	if password == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
		raw, err := readSecret(cfg.KeystorePasswordFile, "keystore password file")
		if err != nil {
			return nil, err
		}
		password = raw
	}
	if password == "" {
		return nil, clierr.New(clierr.CodeSigner, "keystore password is required")
	}
	blob, err := os.ReadFile(cfg.KeystorePath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "read keystore file", err)
	}
	key, err := keystore.DecryptKey(blob, password)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "decrypt keystore", err)
	}
	return key.PrivateKey, nil
}

func readSecret(path, what string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "read "+what, err)
	}
	return strings.TrimSpace(string(buf)), nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, clierr.New(clierr.CodeSigner, "empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "parse private key", err)
	}
	return pk, nil
}

// defaultPrivateKeyPath is $XDG_CONFIG_HOME/keeper/executor.key, or "" when
// no home directory is known.
func defaultPrivateKeyPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, defaultPrivateKeyRelativePath)
}

func discoverDefaultPrivateKeyFile() string {
	path := defaultPrivateKeyPath()
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
