package domain

import (
	"fmt"
	"strings"
)

const (
	CountryCode = "55"

	// Longitudes del número canónico: país(2) + DDD(2) + abonado(8 fijo / 9 móvil)
	MinPhoneLength = 12
	MaxPhoneLength = 13
)

// PhoneNumber es un número brasileño en forma canónica, solo dígitos: 55 + DDD + abonado
type PhoneNumber struct {
	digits string
}

// ParsePhoneNumber normaliza la entrada cruda (con máscara, "+", sufijo "@c.us", etc.).
// Números sin código de país reciben el 55; móviles en el formato antiguo de 8 dígitos
// reciben el noveno dígito.
func ParsePhoneNumber(raw string) (PhoneNumber, error) {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")

	switch len(digits) {
	case 10, 11:
		digits = CountryCode + digits
	case 12, 13:
		if !strings.HasPrefix(digits, CountryCode) {
			return PhoneNumber{}, fmt.Errorf("%w: unsupported country in %q", ErrInvalidPhone, raw)
		}
	default:
		return PhoneNumber{}, fmt.Errorf("%w: %q has %d digits", ErrInvalidPhone, raw, len(digits))
	}

	ddd := digits[2:4]
	if ddd[0] == '0' || ddd[1] == '0' {
		return PhoneNumber{}, fmt.Errorf("%w: invalid area code %s", ErrInvalidPhone, ddd)
	}

	subscriber := digits[4:]
	switch len(subscriber) {
	case 9:
		if subscriber[0] != '9' {
			return PhoneNumber{}, fmt.Errorf("%w: 9-digit subscriber must start with 9", ErrInvalidPhone)
		}
	case 8:
		switch {
		case subscriber[0] >= '6':
			// móvil sin el 9 adicional
			digits = digits[:4] + "9" + subscriber
		case subscriber[0] < '2':
			return PhoneNumber{}, fmt.Errorf("%w: landline must start with 2-5", ErrInvalidPhone)
		}
	}

	return PhoneNumber{digits: digits}, nil
}

// MustParsePhoneNumber es útil en tests y constantes
func MustParsePhoneNumber(raw string) PhoneNumber {
	p, err := ParsePhoneNumber(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p PhoneNumber) String() string { return p.digits }

func (p PhoneNumber) IsZero() bool { return p.digits == "" }

// AreaCode devuelve el DDD
func (p PhoneNumber) AreaCode() string {
	if len(p.digits) < 4 {
		return ""
	}
	return p.digits[2:4]
}

// Subscriber devuelve el número local sin país ni DDD
func (p PhoneNumber) Subscriber() string {
	if len(p.digits) < 4 {
		return ""
	}
	return p.digits[4:]
}

// IsMobile indica si es un celular (9 dígitos iniciando en 9)
func (p PhoneNumber) IsMobile() bool {
	s := p.Subscriber()
	return len(s) == 9 && s[0] == '9'
}

// Display formatea el número para el operador: +55 (81) 99999-9999
func (p PhoneNumber) Display() string {
	s := p.Subscriber()
	if s == "" {
		return ""
	}
	split := len(s) - 4
	return fmt.Sprintf("+%s (%s) %s-%s", CountryCode, p.AreaCode(), s[:split], s[split:])
}

// ChatID es el identificador de chat usado por gateways tipo WAHA
func (p PhoneNumber) ChatID() string {
	return p.digits + "@c.us"
}
