package config

import (
	"fmt"
	"os"
)

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}

const Template = `name = "packetd"
# Overrides PACKETWIRE_LOG_LEVEL when set.
# log_level = "info"

[listen]
addr = "0.0.0.0:5701"
multicore = true
num_event_loops = 0
reuse_port = false

[decoder]
region_capacity = 65536
# A header reserves its whole payload before the body arrives, so each
# connection can hold up to this many bytes per pending packet.
max_payload_bytes = 67108864

[ops]
addr = "127.0.0.1:9464"
cors_origins = ["http://localhost:3000"]
shutdown_timeout = "5s"

[nats]
url = ""
subject_prefix = "packetwire.packets"
`
