package ecommerce

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blowfish"
)

// The Naver signature is bcrypt(message) salted with the client secret, which
// is itself a bcrypt setting string ("$2a$10$" + 22 salt characters). The
// public bcrypt API only generates random salts, so the hash is computed here
// from the blowfish primitives with the same parameters.

const (
	bcryptMinCost        = 4
	// Naver issues cost 10 secrets. Signing cannot be interrupted, and every
	// cost step doubles its time, so higher costs are refused.
	bcryptMaxCost        = 12
	bcryptSaltLen        = 16
	bcryptEncodedSaltLen = 22
	bcryptSettingLen     = 7 + bcryptEncodedSaltLen // "$2a$10$" + salt
	bcryptMaxPasswordLen = 72
)

const bcryptAlphabet = "./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	bcryptMagic    = []byte("OrpheanBeholderScryDoubt")
	bcryptEncoding = base64.NewEncoding(bcryptAlphabet).WithPadding(base64.NoPadding)
)

var (
	errBcryptSetting         = errors.New("secret is not a bcrypt setting ($2a$NN$ + 22 salt characters)")
	errBcryptVersion         = errors.New("unsupported bcrypt version")
	errBcryptCost            = fmt.Errorf("bcrypt cost must be between %d and %d", bcryptMinCost, bcryptMaxCost)
	errBcryptPasswordTooLong = fmt.Errorf("message exceeds %d bytes", bcryptMaxPasswordLen)
)

// bcryptSetting is a parsed "$2a$10$<salt>" prefix
type bcryptSetting struct {
	version string
	cost    int
	salt    []byte // raw 16 bytes
}

// parseBcryptSetting accepts a bare setting or a full 60 character hash;
// anything after the salt is ignored.
func parseBcryptSetting(s string) (*bcryptSetting, error) {
	if len(s) < bcryptSettingLen || s[0] != '$' || s[3] != '$' || s[6] != '$' {
		return nil, errBcryptSetting
	}

	version := s[1:3]
	switch version {
	case "2a", "2b", "2y":
	default:
		return nil, fmt.Errorf("%w: %q", errBcryptVersion, version)
	}

	cost, err := strconv.Atoi(s[4:6])
	if err != nil {
		return nil, errBcryptSetting
	}
	if cost < bcryptMinCost || cost > bcryptMaxCost {
		return nil, errBcryptCost
	}

	salt, err := bcryptEncoding.DecodeString(s[7:bcryptSettingLen])
	if err != nil || len(salt) != bcryptSaltLen {
		return nil, errBcryptSetting
	}

	return &bcryptSetting{version: version, cost: cost, salt: salt}, nil
}

// bcryptHash returns the full "$2a$NN$<salt><hash>" string for password
func bcryptHash(password []byte, setting *bcryptSetting) (string, error) {
	if len(password) > bcryptMaxPasswordLen {
		return "", errBcryptPasswordTooLong
	}

	c, err := expensiveBlowfishSetup(password, setting.cost, setting.salt)
	if err != nil {
		return "", err
	}

	cipherData := make([]byte, len(bcryptMagic))
	copy(cipherData, bcryptMagic)
	for i := 0; i < len(cipherData); i += blowfish.BlockSize {
		for j := 0; j < 64; j++ {
			c.Encrypt(cipherData[i:i+blowfish.BlockSize], cipherData[i:i+blowfish.BlockSize])
		}
	}

	// Only 23 of the 24 bytes are encoded.
	hash := bcryptEncoding.EncodeToString(cipherData[:23])
	salt := bcryptEncoding.EncodeToString(setting.salt)

	return fmt.Sprintf("$%s$%02d$%s%s", setting.version, setting.cost, salt, hash), nil
}

func expensiveBlowfishSetup(key []byte, cost int, salt []byte) (*blowfish.Cipher, error) {
	// The key schedule uses the NUL-terminated password.
	ckey := make([]byte, len(key)+1)
	copy(ckey, key)

	c, err := blowfish.NewSaltedCipher(ckey, salt)
	if err != nil {
		return nil, err
	}

	rounds := uint64(1) << uint(cost)
	for i := uint64(0); i < rounds; i++ {
		blowfish.ExpandKey(ckey, c)
		blowfish.ExpandKey(salt, c)
	}
	return c, nil
}
