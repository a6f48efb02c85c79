package input

// MaxPaste caps how much clipboard text one paste forwards.
const MaxPaste = 4096

// NormalizePaste turns CRLF, CR and LF line endings into the CR the guest
// expects for Return.
func NormalizePaste(raw []byte) []byte {
	norm := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
			norm = append(norm, '\r')
		case '\n':
			norm = append(norm, '\r')
		default:
			norm = append(norm, raw[i])
		}
	}
	return norm
}

func CapPaste(raw []byte, max int) []byte {
	if len(raw) <= max {
		return raw
	}
	return raw[:max]
}

// TerminalByte translates a byte read from a raw-mode terminal. Line feeds
// become CR and DEL becomes backspace.
func TerminalByte(b byte) byte {
	switch b {
	case '\n':
		return '\r'
	case 0x7F:
		return 0x08
	default:
		return b
	}
}
