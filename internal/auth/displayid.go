package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

// displayWords is the fixed dictionary for generated identity names.
var displayWords = []string{
	"Red", "Yellow", "Green", "Teal", "Blue", "Purple", "Amber", "Orange", "Pink",
}

var displayIDPattern = regexp.MustCompile(`^[A-Z][a-z]+-[0-9]{3}$`)

// NewDisplayID generates a human-readable identity name of the form
// "<Word>-<3 digits>", e.g. "Teal-482". Uniqueness is not guaranteed here;
// callers collision-check against the record store.
func NewDisplayID() string {
	word := displayWords[randInt(int64(len(displayWords)))]
	return fmt.Sprintf("%s-%d", word, 100+randInt(900))
}

// ValidDisplayID reports whether s looks like a generated display id.
func ValidDisplayID(s string) bool {
	return displayIDPattern.MatchString(s)
}

// randInt returns a uniform random value in [0, max) from crypto/rand.
func randInt(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		// crypto/rand read failure means the process is in a bad state;
		// refusing to mint identities is the only safe option.
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return n.Int64()
}
