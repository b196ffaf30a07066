package protocol_test

import (
	"reflect"
	"testing"

	"nchat/internal/protocol"
)

func TestFileInfoHexRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fi   protocol.FileInfo
	}{
		{
			name: "downloaded",
			fi: protocol.FileInfo{
				FileStatus: protocol.FileStatusDownloaded,
				FileID:     "file42",
				FilePath:   "/tmp/photo.jpg",
				FileType:   "image/jpeg",
			},
		},
		{
			name: "emptyFields",
			fi:   protocol.FileInfo{FileStatus: protocol.FileStatusNone},
		},
		{
			name: "pathWithSpaces",
			fi: protocol.FileInfo{
				FileStatus: protocol.FileStatusNotDownloaded,
				FileID:     "a=b",
				FilePath:   "/home/user/My Documents/файл.pdf",
				FileType:   "application/pdf",
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			encoded := protocol.FileInfoToHex(tc.fi)
			decoded := protocol.FileInfoFromHex(encoded)
			if !reflect.DeepEqual(decoded, tc.fi) {
				t.Fatalf("FileInfoFromHex(FileInfoToHex()) = %#v, want %#v", decoded, tc.fi)
			}
			// Каноничность: повторное кодирование даёт тот же блоб.
			if again := protocol.FileInfoToHex(decoded); again != encoded {
				t.Fatalf("re-encode mismatch: %q != %q", again, encoded)
			}
		})
	}
}

func TestFileInfoFromHexMalformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "zz", "deadbeef"} {
		got := protocol.FileInfoFromHex(input)
		if got.FileStatus != protocol.FileStatusNone {
			t.Fatalf("FileInfoFromHex(%q).FileStatus = %d, want FileStatusNone", input, got.FileStatus)
		}
	}
}

func TestReactionsEqual(t *testing.T) {
	t.Parallel()

	a := protocol.Reactions{
		SenderEmojis: map[string]string{"u1": "👍", protocol.ReactionsSelfID: "❤"},
		EmojiCounts:  map[string]int{"👍": 1, "❤": 1},
	}
	b := protocol.Reactions{
		SenderEmojis: map[string]string{"u1": "👍", protocol.ReactionsSelfID: "❤"},
		EmojiCounts:  map[string]int{"👍": 1, "❤": 1},
	}
	c := protocol.Reactions{
		SenderEmojis: map[string]string{"u1": "👍"},
		EmojiCounts:  map[string]int{"👍": 1},
	}

	if !a.Equal(b) {
		t.Fatalf("identical reactions must compare equal")
	}
	// Неравенство — честное отрицание равенства (в оригинале была опечатка).
	if a.Equal(c) {
		t.Fatalf("different reactions must not compare equal")
	}
	// Флаги консолидации не участвуют в сравнении.
	b.NeedConsolidationWithCache = true
	b.ReplaceCount = true
	if !a.Equal(b) {
		t.Fatalf("consolidation flags must not affect equality")
	}
}

func TestProfileProtocolName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		profileID string
		want      string
	}{
		{"Telegram_12345", "Telegram"},
		{"WhatsApp_a_b", "WhatsApp"},
		{"NoSuffix", "NoSuffix"},
	}
	for _, tc := range cases {
		if got := protocol.ProfileProtocolName(tc.profileID); got != tc.want {
			t.Fatalf("ProfileProtocolName(%q) = %q, want %q", tc.profileID, got, tc.want)
		}
	}
}

func TestFeatureHas(t *testing.T) {
	t.Parallel()

	f := protocol.FeatureTypingTimeout | protocol.FeatureMarkReadEveryView
	if !f.Has(protocol.FeatureTypingTimeout) {
		t.Fatalf("expected FeatureTypingTimeout")
	}
	if f.Has(protocol.FeatureLimitedReactions) {
		t.Fatalf("unexpected FeatureLimitedReactions")
	}
	if protocol.FeatureNone.Has(protocol.FeatureTypingTimeout) {
		t.Fatalf("FeatureNone must have no features")
	}
}

func TestSponsoredSentinel(t *testing.T) {
	t.Parallel()

	msg := protocol.ChatMessage{TimeSent: protocol.TimeSentSponsored}
	if !msg.IsSponsored() {
		t.Fatalf("TimeSentSponsored must mark message as sponsored")
	}
	if (protocol.ChatMessage{TimeSent: 123}).IsSponsored() {
		t.Fatalf("regular message must not be sponsored")
	}
}
