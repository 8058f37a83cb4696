package token

import "golang.org/x/crypto/bcrypt"

// bcryptCost matches the work factor used when the existing user base was
// seeded; changing it only affects newly hashed passwords.
const bcryptCost = 10

func HashPassword(plain string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func CheckPassword(plain string, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
