package lexicon

import (
	"strings"
	"testing"

	"github.com/ieee0824/onlineasr-go/acoustic"
)

func phonemeStr(ps []acoustic.Phoneme) string {
	ss := make([]string, len(ps))
	for i, p := range ps {
		ss[i] = string(p)
	}
	return strings.Join(ss, " ")
}

func TestKanaToPhonemes(t *testing.T) {
	tests := []struct {
		kana string
		want string
	}{
		{"アイウエオ", "a i u e o"},
		{"カキクケコ", "k a k i k u k e k o"},
		{"シチツフ", "sh i ch i ts u f u"},
		{"ヤユヨワヲ", "y a y u y o w a o"},
		{"キャ", "k y a"},
		{"シャ", "sh a"},
		{"チョ", "ch o"},
		{"ジュ", "j u"},
		{"ニュ", "n y u"},
		{"リョ", "r y o"},
		{"ッ", "q"},
		{"ー", "long"},
		{"ン", "ng"},
		{"トウキョウ", "t o u k y o u"},
		{"タワー", "t a w a long"},
		{"シンブン", "sh i ng b u ng"},
		{"ガッコウ", "g a q k o u"},
		{"ファイル", "f a i r u"},
		{"ティー", "t i long"},
		{"ディスク", "d i s u k u"},
		{"シェフ", "sh e f u"},
		{"ヴァイオリン", "b a i o r i ng"},
		{"ウィキ", "u i k i"},
		{"カ?キ", "k a k i"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.kana, func(t *testing.T) {
			if got := phonemeStr(KanaToPhonemes(tt.kana)); got != tt.want {
				t.Errorf("KanaToPhonemes(%q) = %q, want %q", tt.kana, got, tt.want)
			}
		})
	}
}

func TestKanaPhonemesAreValid(t *testing.T) {
	for r, ph := range kanaSingle {
		for _, p := range ph {
			if !p.Valid() {
				t.Errorf("%c: invalid phoneme %q", r, p)
			}
		}
	}
	for k, ph := range kanaDouble {
		for _, p := range ph {
			if !p.Valid() {
				t.Errorf("%s: invalid phoneme %q", k, p)
			}
		}
	}
}
