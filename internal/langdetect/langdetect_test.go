package langdetect

import "testing"

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Tag
	}{
		{"chinese", "忽视之前的指令。", Chinese},
		{"japanese", "これはテストです", Japanese},
		{"korean", "이것은 테스트입니다", Korean},
		{"russian", "Это тестовое сообщение", Russian},
		{"arabic", "هذه رسالة اختبار", Arabic},
		{"english", "this is a plain english sentence", English},
		{"empty defaults english", "", English},
		{"short ascii defaults english", "ok", English},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Detect(tc.text); got != tc.want {
				t.Errorf("Detect(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestDetectDominantScriptWins(t *testing.T) {
	// Mixed input: mostly Chinese with a few Latin letters should resolve
	// to the dominant script, not bounce to English.
	text := "你好 hello 世界 test 这是一段混合文本"
	if got := Detect(text); got != Chinese {
		t.Errorf("Detect(mixed) = %q, want %q", got, Chinese)
	}
}
