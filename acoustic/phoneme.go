package acoustic

import "fmt"

// Phoneme is a base (context-independent) phone label.
type Phoneme string

// Japanese phone inventory. Lexicon phone columns and kana readings map onto it.
const (
	PhonSil Phoneme = "sil"
	PhonSP  Phoneme = "sp" // short pause

	PhonA Phoneme = "a"
	PhonI Phoneme = "i"
	PhonU Phoneme = "u"
	PhonE Phoneme = "e"
	PhonO Phoneme = "o"

	PhonK Phoneme = "k"
	PhonG Phoneme = "g"
	PhonT Phoneme = "t"
	PhonD Phoneme = "d"
	PhonP Phoneme = "p"
	PhonB Phoneme = "b"

	PhonS  Phoneme = "s"
	PhonZ  Phoneme = "z"
	PhonH  Phoneme = "h"
	PhonF  Phoneme = "f"
	PhonSh Phoneme = "sh"

	PhonCh Phoneme = "ch"
	PhonTs Phoneme = "ts"
	PhonJ  Phoneme = "j"

	PhonM  Phoneme = "m"
	PhonN  Phoneme = "n"
	PhonNg Phoneme = "ng" // moraic nasal

	PhonR Phoneme = "r"
	PhonY Phoneme = "y"
	PhonW Phoneme = "w"

	PhonQ    Phoneme = "q"    // geminate
	PhonLong Phoneme = "long" // vowel lengthening
)

// NumEmittingStates is the number of emitting states per phone HMM.
const NumEmittingStates = 3

// NumStatesPerPhoneme counts the entry and exit states as well.
const NumStatesPerPhoneme = NumEmittingStates + 2

var phonemeOrder = []Phoneme{
	PhonSil, PhonSP,
	PhonA, PhonI, PhonU, PhonE, PhonO,
	PhonK, PhonG, PhonT, PhonD, PhonP, PhonB,
	PhonS, PhonZ, PhonH, PhonF,
	PhonCh, PhonTs, PhonJ,
	PhonM, PhonN, PhonNg,
	PhonR,
	PhonY, PhonW,
	PhonSh,
	PhonQ, PhonLong,
}

var phonemeSet = func() map[Phoneme]struct{} {
	m := make(map[Phoneme]struct{}, len(phonemeOrder))
	for _, p := range phonemeOrder {
		m[p] = struct{}{}
	}
	return m
}()

// AllPhonemes returns the phone inventory in model order.
func AllPhonemes() []Phoneme {
	out := make([]Phoneme, len(phonemeOrder))
	copy(out, phonemeOrder)
	return out
}

// Valid reports whether p belongs to the inventory.
func (p Phoneme) Valid() bool {
	_, ok := phonemeSet[p]
	return ok
}

// IsSilence reports whether p is a silence or pause phone.
func (p Phoneme) IsSilence() bool {
	return p == PhonSil || p == PhonSP
}

// ParsePhonemes converts phone labels, rejecting any outside the inventory.
func ParsePhonemes(labels []string) ([]Phoneme, error) {
	out := make([]Phoneme, len(labels))
	for i, l := range labels {
		p := Phoneme(l)
		if !p.Valid() {
			return nil, fmt.Errorf("unknown phoneme %q", l)
		}
		out[i] = p
	}
	return out, nil
}
