package auth

import "golang.org/x/crypto/bcrypt"

func GeneratePasswordHash(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hashedPassword), nil
}

func ComparePasswordHash(hashedPassword []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hashedPassword, []byte(password))
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
func VerifyPassword(password, hashedPassword string) bool {
	return ComparePasswordHash([]byte(hashedPassword), password) == nil
}
