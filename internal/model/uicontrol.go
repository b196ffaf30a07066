// File uicontrol.go: захват терминала бэкендом (ProtocolUiControl).
//
// Пока контроль захвачен, модель приостанавливает перерисовку и маршрутизацию
// клавиш. Контроль в каждый момент держит не более одного профиля; попытка
// захвата при занятом терминале другим профилем получает отказ, не трогая
// владельца. Ожидание освобождения построено на канале: освобождение
// закрывает канал, а не будит опрос по таймеру.
package model

// TakeUiControl пытается захватить терминал для профиля. Возвращает true при
// успехе (в т.ч. повторный захват тем же профилем) и false-отказ, если
// терминалом владеет другой профиль.
func (m *Model) TakeUiControl(profileID string) bool {
	granted := false
	m.With(func(g *Guard) {
		granted = m.takeUiControl(g, profileID)
	})
	return granted
}

// takeUiControl — locked-вариант захвата.
func (m *Model) takeUiControl(g *Guard, profileID string) bool {
	m.assertLocked(g)
	switch m.uiControlOwner {
	case "":
		m.uiControlOwner = profileID
		m.uiControlFree = make(chan struct{})
		return true
	case profileID:
		return true
	default:
		return false
	}
}

// ReleaseUiControl освобождает терминал, если им владеет profileID, и будит
// всех ожидающих. Прежний режим ввода возобновляется; экран перерисовывается
// целиком.
func (m *Model) ReleaseUiControl(profileID string) {
	m.With(func(g *Guard) {
		m.releaseUiControl(g, profileID)
	})
}

// releaseUiControl — locked-вариант освобождения.
func (m *Model) releaseUiControl(g *Guard, profileID string) {
	m.assertLocked(g)
	if m.uiControlOwner != profileID {
		return
	}
	m.uiControlOwner = ""
	close(m.uiControlFree)
	m.MarkDirty(DirtyAll)
}

// UiControlOwner возвращает профиль-владельца терминала ("" — свободен).
func (m *Model) UiControlOwner() string {
	var owner string
	m.With(func(*Guard) { owner = m.uiControlOwner })
	return owner
}

// UiControlHeld — быстрый признак для главного цикла: перерисовку и клавиши
// нужно придержать.
func (m *Model) UiControlHeld() bool {
	return m.UiControlOwner() != ""
}

// WaitUiControlRelease блокируется до освобождения терминала. Вызывается без
// лока (главный цикл отпускает его перед ожиданием).
func (m *Model) WaitUiControlRelease() {
	var ch chan struct{}
	m.With(func(*Guard) { ch = m.uiControlFree })
	<-ch
}
