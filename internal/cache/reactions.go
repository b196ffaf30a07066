// File reactions.go: слияние входящих реакций с кэшированным состоянием.
// Бэкенды присылают реакции в трёх режимах, управляемых флагами консолидации;
// результат слияния всегда имеет сброшенные флаги и готов к показу.
package cache

import (
	"maps"

	"nchat/internal/protocol"
)

// MergeReactions сливает incoming поверх existing.
//
// Правила:
//   - SenderEmojis объединяются: записи incoming перекрывают existing, пустая
//     строка эмодзи удаляет реакцию отправителя;
//   - ReplaceCount: счётчики берутся из incoming целиком;
//   - UpdateCountBasedOnSender: счётчики пересчитываются по объединённым
//     SenderEmojis;
//   - иначе счётчики incoming накладываются поверх существующих (нулевое
//     значение удаляет счётчик).
func MergeReactions(existing protocol.Reactions, incoming protocol.Reactions) protocol.Reactions {
	out := protocol.Reactions{
		SenderEmojis: maps.Clone(existing.SenderEmojis),
		EmojiCounts:  maps.Clone(existing.EmojiCounts),
	}
	if out.SenderEmojis == nil {
		out.SenderEmojis = make(map[string]string)
	}
	if out.EmojiCounts == nil {
		out.EmojiCounts = make(map[string]int)
	}

	for sender, emoji := range incoming.SenderEmojis {
		if emoji == "" {
			delete(out.SenderEmojis, sender)
			continue
		}
		out.SenderEmojis[sender] = emoji
	}

	switch {
	case incoming.ReplaceCount:
		out.EmojiCounts = maps.Clone(incoming.EmojiCounts)
		if out.EmojiCounts == nil {
			out.EmojiCounts = make(map[string]int)
		}
	case incoming.UpdateCountBasedOnSender:
		out.EmojiCounts = make(map[string]int)
		for _, emoji := range out.SenderEmojis {
			out.EmojiCounts[emoji]++
		}
	default:
		for emoji, count := range incoming.EmojiCounts {
			if count == 0 {
				delete(out.EmojiCounts, emoji)
				continue
			}
			out.EmojiCounts[emoji] = count
		}
	}
	return out
}
