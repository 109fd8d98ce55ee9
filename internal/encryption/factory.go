package encryption

import (
	"fmt"

	"github.com/s1ren-78/beiduoduo/internal/config"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. Type "none" disables archive encryption.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (mirror.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
