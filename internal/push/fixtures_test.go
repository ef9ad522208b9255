package push

import "github.com/gopos/gopos-edge/internal/conf"

var pushSettingsFixture = conf.PushSettings{
	DefaultTitle: "Kasir",
	Vibrate:      []int{100},
}
