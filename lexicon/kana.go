package lexicon

import (
	"unicode/utf8"

	"github.com/ieee0824/onlineasr-go/acoustic"
)

var vowels = []acoustic.Phoneme{acoustic.PhonA, acoustic.PhonI, acoustic.PhonU, acoustic.PhonE, acoustic.PhonO}

// kanaRows lists each gojūon row in a-i-u-e-o order with its consonant.
// An empty slot ('・') has no kana.
var kanaRows = []struct {
	kana      string
	consonant acoustic.Phoneme
}{
	{"アイウエオ", ""},
	{"カキクケコ", acoustic.PhonK},
	{"ガギグゲゴ", acoustic.PhonG},
	{"サシスセソ", acoustic.PhonS},
	{"ザジズゼゾ", acoustic.PhonZ},
	{"タチツテト", acoustic.PhonT},
	{"ダヂヅデド", acoustic.PhonD},
	{"ナニヌネノ", acoustic.PhonN},
	{"ハヒフヘホ", acoustic.PhonH},
	{"バビブベボ", acoustic.PhonB},
	{"パピプペポ", acoustic.PhonP},
	{"マミムメモ", acoustic.PhonM},
	{"ヤ・ユ・ヨ", acoustic.PhonY},
	{"ラリルレロ", acoustic.PhonR},
	{"ワ・・・ヲ", acoustic.PhonW},
	{"ァィゥェォ", ""},
}

// kanaExceptions override the regular row/column reading.
var kanaExceptions = map[string][]acoustic.Phoneme{
	"シ": {acoustic.PhonSh, acoustic.PhonI},
	"ジ": {acoustic.PhonJ, acoustic.PhonI},
	"チ": {acoustic.PhonCh, acoustic.PhonI},
	"ツ": {acoustic.PhonTs, acoustic.PhonU},
	"ヂ": {acoustic.PhonJ, acoustic.PhonI},
	"ヅ": {acoustic.PhonZ, acoustic.PhonU},
	"フ": {acoustic.PhonF, acoustic.PhonU},
	"ヲ": {acoustic.PhonO},
	"ン": {acoustic.PhonNg},
	"ッ": {acoustic.PhonQ},
	"ー": {acoustic.PhonLong},
	"ヴ": {acoustic.PhonB, acoustic.PhonU},

	// Loanword digraphs whose consonant differs from the base kana.
	"ティ": {acoustic.PhonT, acoustic.PhonI},
	"ディ": {acoustic.PhonD, acoustic.PhonI},
	"トゥ": {acoustic.PhonT, acoustic.PhonU},
	"ドゥ": {acoustic.PhonD, acoustic.PhonU},
	"テュ": {acoustic.PhonT, acoustic.PhonY, acoustic.PhonU},
	"デュ": {acoustic.PhonD, acoustic.PhonY, acoustic.PhonU},
	"フュ": {acoustic.PhonF, acoustic.PhonY, acoustic.PhonU},
	"イェ": {acoustic.PhonI, acoustic.PhonE},
	"クァ": {acoustic.PhonK, acoustic.PhonW, acoustic.PhonA},
	"グァ": {acoustic.PhonG, acoustic.PhonW, acoustic.PhonA},
}

// smallY maps the small ya/yu/yo kana to their vowels.
var smallY = map[rune]acoustic.Phoneme{'ャ': acoustic.PhonA, 'ュ': acoustic.PhonU, 'ョ': acoustic.PhonO}

// smallVowel maps small vowel kana used in loanword digraphs.
var smallVowel = map[rune]acoustic.Phoneme{
	'ァ': acoustic.PhonA, 'ィ': acoustic.PhonI, 'ゥ': acoustic.PhonU, 'ェ': acoustic.PhonE, 'ォ': acoustic.PhonO,
}

var (
	kanaSingle = make(map[rune][]acoustic.Phoneme)
	kanaDouble = make(map[string][]acoustic.Phoneme)
)

func init() {
	for _, row := range kanaRows {
		for col, r := range []rune(row.kana) {
			if r == '・' {
				continue
			}
			var ph []acoustic.Phoneme
			if row.consonant != "" {
				ph = append(ph, row.consonant)
			}
			kanaSingle[r] = append(ph, vowels[col])
		}
	}
	for k, ph := range kanaExceptions {
		r, size := utf8.DecodeRuneInString(k)
		if size == len(k) {
			kanaSingle[r] = ph
		} else {
			kanaDouble[k] = ph
		}
	}

	// Yōon: i-column kana + small ya/yu/yo. Sibilants absorb the glide.
	for base, ph := range kanaSingle {
		if len(ph) != 2 || ph[1] != acoustic.PhonI || ph[0] == acoustic.PhonY {
			continue
		}
		for small, v := range smallY {
			key := string([]rune{base, small})
			switch ph[0] {
			case acoustic.PhonSh, acoustic.PhonCh, acoustic.PhonJ:
				kanaDouble[key] = []acoustic.Phoneme{ph[0], v}
			default:
				kanaDouble[key] = []acoustic.Phoneme{ph[0], acoustic.PhonY, v}
			}
		}
	}

	// Loanword digraphs: sibilant/affricate, f, ts, w and v kana + small vowel.
	for _, base := range []rune{'シ', 'ジ', 'チ', 'フ', 'ツ', 'ウ', 'ヴ'} {
		onset := kanaSingle[base][:len(kanaSingle[base])-1]
		for small, v := range smallVowel {
			key := string([]rune{base, small})
			if _, ok := kanaDouble[key]; ok {
				continue
			}
			if base == 'ウ' {
				kanaDouble[key] = []acoustic.Phoneme{acoustic.PhonU, v}
				continue
			}
			kanaDouble[key] = append(append([]acoustic.Phoneme(nil), onset...), v)
		}
	}
}

// KanaToPhonemes converts katakana to phones by longest match.
// Unknown characters are skipped.
func KanaToPhonemes(kana string) []acoustic.Phoneme {
	runes := []rune(kana)
	var out []acoustic.Phoneme
	for i := 0; i < len(runes); i++ {
		if i+1 < len(runes) {
			if ph, ok := kanaDouble[string(runes[i:i+2])]; ok {
				out = append(out, ph...)
				i++
				continue
			}
		}
		out = append(out, kanaSingle[runes[i]]...)
	}
	return out
}
