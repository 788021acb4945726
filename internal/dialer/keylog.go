package dialer

import (
	"io"
	"log"
	"os"
	"sync"
)

// keylogState lazily opens the NSS key-log file once per dialer. The
// file is opened append-mode so several clients can share one log.
type keylogState struct {
	once sync.Once
	w    io.Writer
}

func (k *keylogState) writer(filename string) io.Writer {
	k.once.Do(func() {
		if filename == "" {
			filename = os.Getenv("SSLKEYLOGFILE")
		}
		if filename == "" {
			return
		}
		f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			log.Printf("dialer: cannot open key log file: %v\n", err)
			return
		}
		k.w = f
	})
	return k.w
}
