// File auth.go: интерактивная авторизация — терминальный аутентификатор для
// входа по коду (auth.UserAuthenticator) и вход по QR. Весь ввод выполняется
// под захваченным терминалом (см. Backend.authorize); пароль 2FA читается
// без эха.
package telegram

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
	"rsc.io/qr"
)

// promptLine выводит приглашение и читает одну строку через readline.
func promptLine(prompt string) (string, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return "", err
	}
	defer func() { _ = rl.Close() }()
	line, err := rl.Readline()
	return strings.TrimSpace(line), err
}

// terminalAuthenticator реализует auth.UserAuthenticator: номер телефона
// известен из профиля, код и 2FA запрашиваются у пользователя.
type terminalAuthenticator struct {
	phone string
}

// Phone возвращает номер из профиля. Формат не проверяется; ожидается E.164.
func (t terminalAuthenticator) Phone(_ context.Context) (string, error) {
	return t.phone, nil
}

// Code запрашивает код подтверждения.
func (t terminalAuthenticator) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return promptLine("Enter the code from Telegram: ")
}

// Password считывает пароль 2FA без отображения вводимых символов.
func (t terminalAuthenticator) Password(_ context.Context) (string, error) {
	fmt.Print("Enter 2FA password: ")
	passwordBytes, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

// AcceptTermsOfService показывает текст условий и требует явного согласия.
func (t terminalAuthenticator) AcceptTermsOfService(_ context.Context, tos tg.HelpTermsOfService) error {
	fmt.Printf("Telegram Terms of Service: %s\n", tos.Text)
	resp, err := promptLine("Do you accept? (y/n): ")
	if err != nil {
		return err
	}
	if resp != "y" && resp != "Y" {
		return errors.New("user did not accept terms of service")
	}
	return nil
}

// SignUp собирает имя для первичной регистрации незнакомого номера.
func (t terminalAuthenticator) SignUp(_ context.Context) (auth.UserInfo, error) {
	firstName, err := promptLine("Enter your first name: ")
	if err != nil {
		return auth.UserInfo{}, err
	}
	lastName, _ := promptLine("Enter your last name (optional): ")
	return auth.UserInfo{FirstName: firstName, LastName: lastName}, nil
}

// qrLogin выполняет вход по QR: токен рендерится в терминал, подтверждение
// приходит апдейтом UpdateLoginToken.
func (b *Backend) qrLogin(ctx context.Context) error {
	loggedIn := qrlogin.OnLoginToken(b.dispatcher)
	_, err := b.client.QR().Auth(ctx, loggedIn, func(ctx context.Context, token qrlogin.Token) error {
		fmt.Println("Scan the QR code with Telegram on your phone:")
		return renderQR(token.URL())
	})
	return err
}

// renderQR печатает QR-код псевдографикой: два модуля на символ по
// вертикали (▀/▄/█), чтобы код оставался квадратным в терминале.
func renderQR(url string) error {
	code, err := qr.Encode(url, qr.M)
	if err != nil {
		return errors.Wrap(err, "encode qr")
	}
	var sb strings.Builder
	for y := 0; y < code.Size; y += 2 {
		for x := 0; x < code.Size; x++ {
			top := code.Black(x, y)
			bottom := y+1 < code.Size && code.Black(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteByte('\n')
	}
	_, err = os.Stdout.WriteString(sb.String())
	return err
}
