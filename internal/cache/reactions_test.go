package cache_test

import (
	"reflect"
	"testing"

	"nchat/internal/cache"
	"nchat/internal/protocol"
)

func TestMergeReactions(t *testing.T) {
	t.Parallel()

	existing := protocol.Reactions{
		SenderEmojis: map[string]string{"u1": "👍", "u2": "❤"},
		EmojiCounts:  map[string]int{"👍": 1, "❤": 1},
	}

	cases := []struct {
		name     string
		incoming protocol.Reactions
		want     protocol.Reactions
	}{
		{
			name: "senderOverridesAndCountMerge",
			incoming: protocol.Reactions{
				SenderEmojis: map[string]string{"u1": "😂"},
				EmojiCounts:  map[string]int{"😂": 1},
			},
			want: protocol.Reactions{
				SenderEmojis: map[string]string{"u1": "😂", "u2": "❤"},
				EmojiCounts:  map[string]int{"👍": 1, "❤": 1, "😂": 1},
			},
		},
		{
			name: "emptyEmojiRemovesSender",
			incoming: protocol.Reactions{
				SenderEmojis: map[string]string{"u2": ""},
			},
			want: protocol.Reactions{
				SenderEmojis: map[string]string{"u1": "👍"},
				EmojiCounts:  map[string]int{"👍": 1, "❤": 1},
			},
		},
		{
			name: "replaceCount",
			incoming: protocol.Reactions{
				ReplaceCount: true,
				EmojiCounts:  map[string]int{"🔥": 7},
			},
			want: protocol.Reactions{
				SenderEmojis: map[string]string{"u1": "👍", "u2": "❤"},
				EmojiCounts:  map[string]int{"🔥": 7},
			},
		},
		{
			name: "updateCountBasedOnSender",
			incoming: protocol.Reactions{
				UpdateCountBasedOnSender: true,
				SenderEmojis:             map[string]string{"u3": "👍"},
			},
			want: protocol.Reactions{
				SenderEmojis: map[string]string{"u1": "👍", "u2": "❤", "u3": "👍"},
				EmojiCounts:  map[string]int{"👍": 2, "❤": 1},
			},
		},
		{
			name: "zeroCountDeletes",
			incoming: protocol.Reactions{
				EmojiCounts: map[string]int{"👍": 0},
			},
			want: protocol.Reactions{
				SenderEmojis: map[string]string{"u1": "👍", "u2": "❤"},
				EmojiCounts:  map[string]int{"❤": 1},
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := cache.MergeReactions(existing.Clone(), tc.incoming)
			if !reflect.DeepEqual(got.SenderEmojis, tc.want.SenderEmojis) {
				t.Fatalf("SenderEmojis = %#v, want %#v", got.SenderEmojis, tc.want.SenderEmojis)
			}
			if !reflect.DeepEqual(got.EmojiCounts, tc.want.EmojiCounts) {
				t.Fatalf("EmojiCounts = %#v, want %#v", got.EmojiCounts, tc.want.EmojiCounts)
			}
			// Результат слияния всегда готов к показу: флаги сброшены.
			if got.NeedConsolidationWithCache || got.UpdateCountBasedOnSender || got.ReplaceCount {
				t.Fatalf("merged reactions must have consolidation flags cleared: %#v", got)
			}
		})
	}
}
