package link

import "errors"

func errDisconnected() error { return errors.New("link: disconnected") }
