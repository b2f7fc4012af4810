package telnet

// StripANSI removes ANSI CSI escape sequences (ESC '[' params final-byte)
// and lone ESC bytes from s.
//
// Postcondition: the result contains no ESC byte and is never longer than s.
func StripANSI(s string) string {
	result := make([]byte, 0, len(s))
	i := 0
	for i < len(s) {
		if s[i] != '\033' {
			result = append(result, s[i])
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j + 1
			continue
		}
		i++
	}
	return string(result)
}
