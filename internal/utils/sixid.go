package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// sixIDSubtype is the custom BSON binary subtype SixIDs are stored with.
const sixIDSubtype byte = 0x80

// SixIDHookFunc defines the signature for the NewSixID test hook.
// It returns a SixID and a boolean indicating whether to override the default generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is a package-level variable that tests can set to override NewSixID behavior.
var NewSixIDHook SixIDHookFunc

// SixID is a 6-byte random document identifier, rendered as 10 Crockford Base32 characters.
type SixID [6]byte

// NewSixID creates a new random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}

	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("sixid: random source failed: %v", err))
	}
	return id
}

// ParseSixID parses the Crockford Base32 representation of a SixID.
func ParseSixID(s string) (SixID, error) {
	return ParseCrockfordSixID(s)
}

// MustParseSixID is ParseSixID for constants in tests and fixtures.
func MustParseSixID(s string) SixID {
	id, err := ParseSixID(s)
	if err != nil {
		panic(err)
	}
	return id
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap map[byte]byte

func init() {
	crockfordDecodeMap = make(map[byte]byte, 64)
	for i := range crockfordAlphabet {
		crockfordDecodeMap[crockfordAlphabet[i]] = byte(i)
	}

	lower := strings.ToLower(crockfordAlphabet)
	for i := range lower {
		if i >= 10 {
			crockfordDecodeMap[lower[i]] = byte(i)
		}
	}

	// Commonly confused characters
	crockfordDecodeMap['O'] = crockfordDecodeMap['0']
	crockfordDecodeMap['o'] = crockfordDecodeMap['0']
	crockfordDecodeMap['I'] = crockfordDecodeMap['1']
	crockfordDecodeMap['i'] = crockfordDecodeMap['1']
	crockfordDecodeMap['L'] = crockfordDecodeMap['1']
	crockfordDecodeMap['l'] = crockfordDecodeMap['1']
}

// IsZero reports whether the id is unset. The BSON encoder uses it for omitempty.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

// String returns the Crockford Base32 (uppercase) representation.
func (u SixID) String() string {
	// 48 bits -> 10 characters
	result := make([]byte, 0, 10)
	var bits, offset uint

	for i := 0; i < 6; i++ {
		bits |= uint(u[i]) << offset
		offset += 8

		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}

// ParseCrockfordSixID converts a Crockford Base32 string back to a SixID.
func ParseCrockfordSixID(s string) (SixID, error) {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")

	if len(s) != 10 {
		return SixID{}, errors.New("invalid SixID: string length must be 10")
	}

	var bits uint64
	var offset uint
	var id SixID
	byteIndex := 0

	for i := 0; i < 10; i++ {
		val, ok := crockfordDecodeMap[s[i]]
		if !ok {
			return SixID{}, errors.New("invalid character in SixID")
		}

		bits |= uint64(val) << offset
		offset += 5

		for offset >= 8 && byteIndex < 6 {
			id[byteIndex] = byte(bits & 0xFF)
			byteIndex++
			bits >>= 8
			offset -= 8
		}
	}

	if byteIndex != 6 {
		return SixID{}, errors.New("invalid SixID: couldn't decode 6 bytes")
	}
	return id, nil
}

// MarshalBSONValue stores the id as binary with the custom subtype.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bsontype.Binary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue reads an id written by MarshalBSONValue.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, raw []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*u = SixID{}
		return nil
	}
	if t != bsontype.Binary {
		return fmt.Errorf("invalid BSON type for SixID: %s", t)
	}
	subtype, data, _, ok := bsoncore.ReadBinary(raw)
	if !ok || subtype != sixIDSubtype || len(data) != 6 {
		return errors.New("invalid BSON binary data for SixID: incorrect subtype or length")
	}
	copy(u[:], data)
	return nil
}

// MarshalJSON marshals the SixID as a JSON string in Crockford Base32 format.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON unmarshals a SixID from a JSON string in Crockford Base32 format.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*u = SixID{}
		return nil
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
