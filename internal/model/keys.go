// File keys.go: машина состояний обработки клавиш.
//
// Режимы взаимно исключающие в пределах чата (см. Mode). Переходы:
//   - Default → SelectMessage: Up при курсоре в позиции 0 и непустой истории;
//   - SelectMessage → Default: Down при messageOffset == 0;
//   - Default → EditMessage: клавиша правки над выбранным исходящим
//     сообщением в пределах окна, разрешённого фичей бэкенда;
//   - любой режим → Default по клавише отмены; ввод сохраняется при
//     undo_clear_input, иначе очищается;
//   - любой режим может быть вытеснен захватом терминала бэкендом
//     (ProtocolUiControl); после освобождения прежний режим возобновляется.
package model

import (
	"fmt"
	"strings"
	"time"

	"nchat/internal/protocol"
)

// EmojiPad — нулевой по ширине код-пойнт, который строка ввода хранит рядом
// с двухколоночными глифами для упрощения курсорной арифметики. Это токен
// рендера: он никогда не пересекает границу отправки/копирования.
const EmojiPad rune = '\x01'

// AnyKeyPressed вызывается до маршрутизации каждой клавиши: любой ввод
// прерывает фоновый прогон home-fetch-all.
func (m *Model) AnyKeyPressed(g *Guard) {
	m.assertLocked(g)
	if m.homeFetch {
		m.stopHomeFetch(g)
	}
}

// OnKeyUp: в Default при курсоре в нуле переходит к выбору сообщений;
// в SelectMessage двигает выбор к более старым, при нехватке истории
// инициируя подгрузку.
func (m *Model) OnKeyUp(g *Guard) {
	m.assertLocked(g)
	switch m.mode {
	case ModeDefault:
		if m.entryPos > 0 {
			m.entryPos--
			m.MarkDirty(DirtyEntry)
			return
		}
		cs := m.currentChatState()
		if cs == nil || len(cs.messageVec) == 0 {
			return
		}
		m.mode = ModeSelectMessage
		cs.messageOffset = 0
		m.MarkDirty(DirtyHistory)
	case ModeSelectMessage:
		cs := m.currentChatState()
		if cs == nil {
			return
		}
		if cs.messageOffset < len(cs.messageVec)-1 {
			cs.messageOffset++
		}
		m.fetchHistoryIfNeeded(g, m.current, false)
		m.MarkDirty(DirtyHistory)
	}
}

// OnKeyDown: в SelectMessage при messageOffset == 0 возвращает в Default,
// иначе двигает выбор к более свежим.
func (m *Model) OnKeyDown(g *Guard) {
	m.assertLocked(g)
	if m.mode != ModeSelectMessage {
		return
	}
	cs := m.currentChatState()
	if cs == nil {
		return
	}
	if cs.messageOffset == 0 {
		m.mode = ModeDefault
		m.MarkDirty(DirtyHistory | DirtyEntry)
		return
	}
	cs.messageOffset--
	m.MarkDirty(DirtyHistory)
}

// OnKeyPrevPage листает историю назад на страницу; размер шага кладётся в
// стек, чтобы page-down повторил те же шаги в обратном порядке.
func (m *Model) OnKeyPrevPage(g *Guard) {
	m.assertLocked(g)
	cs := m.currentChatState()
	if cs == nil || len(cs.messageVec) == 0 {
		return
	}
	if m.mode == ModeDefault {
		m.mode = ModeSelectMessage
	}
	step := m.historyViewLines
	if cs.messageOffset+step > len(cs.messageVec)-1 {
		step = len(cs.messageVec) - 1 - cs.messageOffset
	}
	if step <= 0 {
		m.fetchHistoryIfNeeded(g, m.current, false)
		return
	}
	cs.messageOffset += step
	cs.offsetStack = append(cs.offsetStack, step)
	m.fetchHistoryIfNeeded(g, m.current, false)
	m.MarkDirty(DirtyHistory)
}

// OnKeyNextPage листает вперёд, снимая размер шага со стека. Достижение
// нуля — действие «конец истории»: выбор гаснет, видимое помечается
// прочитанным.
func (m *Model) OnKeyNextPage(g *Guard) {
	m.assertLocked(g)
	cs := m.currentChatState()
	if cs == nil {
		return
	}
	step := m.historyViewLines
	if n := len(cs.offsetStack); n > 0 {
		step = cs.offsetStack[n-1]
		cs.offsetStack = cs.offsetStack[:n-1]
	}
	cs.messageOffset -= step
	if cs.messageOffset <= 0 {
		cs.messageOffset = 0
		m.mode = ModeDefault
		m.markVisibleRead(g, m.current, true)
	}
	m.MarkDirty(DirtyHistory)
}

// OnKeyHome: при включённом home_fetch_all запускает фоновый прогон истории
// до самого старого сообщения; иначе прыгает к самому старому из известных.
func (m *Model) OnKeyHome(g *Guard) {
	m.assertLocked(g)
	cs := m.currentChatState()
	if cs == nil {
		return
	}
	if m.settings.UI.GetBool("home_fetch_all") {
		m.startHomeFetchAll(g)
		return
	}
	if len(cs.messageVec) == 0 {
		return
	}
	if m.mode == ModeDefault {
		m.mode = ModeSelectMessage
	}
	cs.messageOffset = len(cs.messageVec) - 1
	m.fetchHistoryIfNeeded(g, m.current, false)
	m.MarkDirty(DirtyHistory)
}

// OnKeyEnd прыгает к самому свежему сообщению: выбор и стек сбрасываются,
// видимое помечается прочитанным (действие «конец истории»).
func (m *Model) OnKeyEnd(g *Guard) {
	m.assertLocked(g)
	cs := m.currentChatState()
	if cs == nil {
		return
	}
	cs.messageOffset = 0
	cs.offsetStack = cs.offsetStack[:0]
	m.mode = ModeDefault
	m.markVisibleRead(g, m.current, true)
	m.MarkDirty(DirtyHistory)
}

// OnKeyNextChat / OnKeyPrevChat переключают текущий чат по chatVec.
func (m *Model) OnKeyNextChat(g *Guard) { m.switchChat(g, 1) }
func (m *Model) OnKeyPrevChat(g *Guard) { m.switchChat(g, -1) }

func (m *Model) switchChat(g *Guard, delta int) {
	m.assertLocked(g)
	next, ok := m.adjacentChat(delta)
	if !ok {
		return
	}
	m.setCurrentChat(g, next)
	// Префетч чата, который станет текущим при следующем next_chat, — только
	// первая страница.
	if delta > 0 {
		m.prefetchNextChat(g)
	}
}

// OnKeyUnreadChat прыгает к первому непрочитанному чату (если есть).
func (m *Model) OnKeyUnreadChat(g *Guard) {
	m.assertLocked(g)
	for _, key := range m.chatVec {
		if cs := m.chat(key); cs != nil && cs.info.IsUnread {
			m.setCurrentChat(g, key)
			return
		}
	}
}

// setCurrentChat делает чат текущим: сообщает бэкенду, сбрасывает режим,
// подгружает историю и применяет политику прочтения.
func (m *Model) setCurrentChat(g *Guard, key ChatKey) {
	m.assertLocked(g)
	if m.currentSet && m.current != key {
		// Покидая чат, глушим собственный индикатор набора.
		m.stopTyping(g, m.current)
	}
	m.current = key
	m.currentSet = true
	m.mode = ModeDefault
	if cs := m.chat(key); cs != nil {
		cs.messageOffset = 0
		cs.offsetStack = cs.offsetStack[:0]
	}
	m.sendRequest(key.ProfileID, protocol.SetCurrentChatRequest{ChatID: key.ChatID})
	m.fetchHistoryIfNeeded(g, key, false)
	m.markVisibleRead(g, key, false)
	m.MarkDirty(DirtyAll)
}

// currentChatState возвращает состояние текущего чата (nil, если не выбран).
func (m *Model) currentChatState() *chatState {
	if !m.currentSet {
		return nil
	}
	return m.chat(m.current)
}

// SelectedMessage возвращает выбранное сообщение в ModeSelectMessage.
func (m *Model) SelectedMessage(g *Guard) *protocol.ChatMessage {
	m.assertLocked(g)
	if m.mode != ModeSelectMessage {
		return nil
	}
	cs := m.currentChatState()
	if cs == nil || cs.messageOffset >= len(cs.messageVec) {
		return nil
	}
	return cs.messages[cs.messageVec[cs.messageOffset]]
}

// EntryRune вставляет руну в позицию курсора и транслирует статус набора.
func (m *Model) EntryRune(g *Guard, r rune) {
	m.assertLocked(g)
	if m.mode != ModeDefault && m.mode != ModeEditMessage {
		return
	}
	m.entryText = append(m.entryText[:m.entryPos],
		append([]rune{r}, m.entryText[m.entryPos:]...)...)
	m.entryPos++
	m.onEntryActivity(g)
	m.MarkDirty(DirtyEntry)
}

// EntryBackspace удаляет руну перед курсором (вместе с парным EMOJI_PAD).
func (m *Model) EntryBackspace(g *Guard) {
	m.assertLocked(g)
	if m.entryPos == 0 || (m.mode != ModeDefault && m.mode != ModeEditMessage) {
		return
	}
	del := 1
	if m.entryText[m.entryPos-1] == EmojiPad && m.entryPos >= 2 {
		del = 2
	}
	m.entryText = append(m.entryText[:m.entryPos-del], m.entryText[m.entryPos:]...)
	m.entryPos -= del
	m.onEntryActivity(g)
	m.MarkDirty(DirtyEntry)
}

// stripRenderTokens убирает EMOJI_PAD перед пересечением границы отправки.
func stripRenderTokens(text []rune) string {
	var b strings.Builder
	for _, r := range text {
		if r == EmojiPad {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// OnKeyReturn: в Default отправляет сообщение, в EditMessage сохраняет правку.
func (m *Model) OnKeyReturn(g *Guard) {
	m.assertLocked(g)
	switch m.mode {
	case ModeDefault:
		m.sendEntry(g)
	case ModeEditMessage:
		m.saveEdit(g)
	}
}

// sendEntry отправляет текущий ввод как сообщение. В истории немедленно
// появляется временная запись; эхо отправки заменит её подтверждённым id.
func (m *Model) sendEntry(g *Guard) {
	m.assertLocked(g)
	text := stripRenderTokens(m.entryText)
	if !m.currentSet || strings.TrimSpace(text) == "" {
		return
	}
	cs := m.currentChatState()
	if cs == nil {
		return
	}
	ps := m.profileState(m.current.ProfileID)

	tempID := fmt.Sprintf("\x00temp-%d", m.tempSeq.Add(1))
	selfID := ""
	if ps != nil {
		selfID = ps.proto.SelfID()
	}
	temp := protocol.ChatMessage{
		ID:         tempID,
		SenderID:   selfID,
		Text:       text,
		TimeSent:   m.now().UnixMilli(),
		IsOutgoing: true,
		IsRead:     true,
	}
	cs.insertMessage(&temp)
	cs.tempMsgIDs = append(cs.tempMsgIDs, tempID)

	m.sendRequest(m.current.ProfileID, protocol.SendMessageRequest{
		ChatID:      m.current.ChatID,
		ChatMessage: protocol.ChatMessage{Text: text, IsOutgoing: true},
	})

	m.entryText = m.entryText[:0]
	m.entryPos = 0
	m.stopTyping(g, m.current)
	// Отправка — действие «конец истории».
	cs.messageOffset = 0
	cs.offsetStack = cs.offsetStack[:0]
	m.markVisibleRead(g, m.current, true)
	m.recomputeChatMeta(cs)
	m.sortChats(g)
	m.MarkDirty(DirtyHistory | DirtyEntry)
}

// editWindow возвращает допустимый возраст правки и текст отказа для бэкенда.
func editWindow(p protocol.Protocol) (time.Duration, string) {
	switch {
	case p.HasFeature(protocol.FeatureEditMessagesWithinFifteenMins):
		return 15 * time.Minute, "Messages older than 15 minutes cannot be edited."
	case p.HasFeature(protocol.FeatureEditMessagesWithinTwoDays):
		return 48 * time.Hour, "Messages older than two days cannot be edited."
	default:
		return 0, ""
	}
}

// OnKeyEdit переводит выбранное исходящее сообщение в режим правки, если его
// возраст укладывается в окно, разрешённое фичей бэкенда. Отказ показывается
// пользователю и не порождает запросов.
func (m *Model) OnKeyEdit(g *Guard) {
	m.assertLocked(g)
	msg := m.SelectedMessage(g)
	if msg == nil || !m.currentSet {
		return
	}
	if !msg.IsOutgoing {
		return
	}
	ps := m.profileState(m.current.ProfileID)
	if ps == nil {
		return
	}
	if window, denyText := editWindow(ps.proto); window > 0 {
		age := time.Duration(m.now().UnixMilli()-msg.TimeSent) * time.Millisecond
		if age > window {
			m.alertText = denyText
			m.mode = ModeMessageDialog
			m.MarkDirty(DirtyStatus)
			return
		}
	}
	m.savedEntry = m.entryText
	m.entryText = []rune(msg.Text)
	m.entryPos = len(m.entryText)
	m.editMsgID = msg.ID
	m.mode = ModeEditMessage
	m.MarkDirty(DirtyEntry)
}

// saveEdit отправляет EditMessageRequest и возвращает прежний ввод.
func (m *Model) saveEdit(g *Guard) {
	m.assertLocked(g)
	text := stripRenderTokens(m.entryText)
	if m.currentSet && m.editMsgID != "" && strings.TrimSpace(text) != "" {
		m.sendRequest(m.current.ProfileID, protocol.EditMessageRequest{
			ChatID:      m.current.ChatID,
			MsgID:       m.editMsgID,
			ChatMessage: protocol.ChatMessage{Text: text, IsOutgoing: true},
		})
	}
	m.editMsgID = ""
	m.entryText = m.savedEntry
	m.savedEntry = nil
	m.entryPos = len(m.entryText)
	m.mode = ModeDefault
	m.MarkDirty(DirtyEntry | DirtyHistory)
}

// OnKeyCancel возвращает в Default из любого режима. Правка восстанавливает
// вытесненный ввод; в остальных режимах ввод сохраняется только при
// undo_clear_input.
func (m *Model) OnKeyCancel(g *Guard) {
	m.assertLocked(g)
	switch m.mode {
	case ModeEditMessage:
		m.editMsgID = ""
		m.entryText = m.savedEntry
		m.savedEntry = nil
		m.entryPos = len(m.entryText)
	default:
		if !m.settings.UI.GetBool("undo_clear_input") {
			m.entryText = nil
			m.entryPos = 0
		}
	}
	// Вне режима выбора messageOffset всегда ноль.
	if cs := m.currentChatState(); cs != nil {
		cs.messageOffset = 0
		cs.offsetStack = cs.offsetStack[:0]
	}
	m.mode = ModeDefault
	m.MarkDirty(DirtyEntry | DirtyHistory)
}

// OnKeyDeleteMsg запрашивает удаление выбранного сообщения.
func (m *Model) OnKeyDeleteMsg(g *Guard) {
	m.assertLocked(g)
	if !m.settings.App.GetBool("message_delete") {
		return
	}
	msg := m.SelectedMessage(g)
	if msg == nil {
		return
	}
	m.sendRequest(m.current.ProfileID, protocol.DeleteMessageRequest{
		ChatID:   m.current.ChatID,
		SenderID: msg.SenderID,
		MsgID:    msg.ID,
	})
}

// OnKeyDeleteChat запрашивает удаление текущего чата.
func (m *Model) OnKeyDeleteChat(g *Guard) {
	m.assertLocked(g)
	if !m.currentSet {
		return
	}
	m.sendRequest(m.current.ProfileID, protocol.DeleteChatRequest{
		ChatID: m.current.ChatID,
	})
}

// SendReaction ставит реакцию на выбранное сообщение (пустая строка снимает).
func (m *Model) SendReaction(g *Guard, emoji string) {
	m.assertLocked(g)
	msg := m.SelectedMessage(g)
	if msg == nil {
		return
	}
	prev := ""
	if msg.Reactions.SenderEmojis != nil {
		prev = msg.Reactions.SenderEmojis[protocol.ReactionsSelfID]
	}
	m.sendRequest(m.current.ProfileID, protocol.SendReactionRequest{
		ChatID:    m.current.ChatID,
		SenderID:  msg.SenderID,
		MsgID:     msg.ID,
		Emoji:     emoji,
		PrevEmoji: prev,
	})
}

// DownloadSelectedAttachment запрашивает скачивание вложения выбранного
// сообщения с последующим действием action.
func (m *Model) DownloadSelectedAttachment(g *Guard, action protocol.DownloadFileAction) {
	m.assertLocked(g)
	msg := m.SelectedMessage(g)
	if msg == nil || msg.FileInfo == "" {
		return
	}
	fi := protocol.FileInfoFromHex(msg.FileInfo)
	switch fi.FileStatus {
	case protocol.FileStatusDownloaded:
		if fi.FilePath != "" {
			m.fileActions = append(m.fileActions, FileAction{Path: fi.FilePath, Action: action})
		}
	case protocol.FileStatusNotDownloaded, protocol.FileStatusDownloadFailed:
		m.sendRequest(m.current.ProfileID, protocol.DownloadFileRequest{
			ChatID: m.current.ChatID,
			MsgID:  msg.ID,
			FileID: fi.FileID,
			Action: action,
		})
	}
}

// OpenDialog / CloseDialog переключают модальные режимы: пока диалог открыт,
// маршрутизация клавиш в модели приостановлена.
func (m *Model) OpenDialog(g *Guard, mode Mode) {
	m.assertLocked(g)
	if mode == ModeListDialog || mode == ModeMessageDialog {
		m.mode = mode
	}
}

func (m *Model) CloseDialog(g *Guard) {
	m.assertLocked(g)
	if m.mode == ModeListDialog || m.mode == ModeMessageDialog {
		m.mode = ModeDefault
		m.MarkDirty(DirtyAll)
	}
}

// FindText запускает поиск сообщения по тексту в текущем чате.
func (m *Model) FindText(g *Guard, text string) {
	m.assertLocked(g)
	if !m.currentSet || text == "" {
		return
	}
	cs := m.currentChatState()
	lastID := ""
	if cs != nil && len(cs.messageVec) > 0 {
		lastID = cs.messageVec[0]
	}
	m.sendRequest(m.current.ProfileID, protocol.FindMessageRequest{
		ChatID:    m.current.ChatID,
		LastMsgID: lastID,
		FindText:  text,
	})
}

// CreateChat запрашивает создание 1:1 чата (из диалога контактов).
func (m *Model) CreateChat(g *Guard, profileID, userID string) {
	m.assertLocked(g)
	m.sendRequest(profileID, protocol.CreateChatRequest{UserID: userID})
}
