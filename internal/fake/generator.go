package fake

import (
	"fmt"
	"math/rand"
)

// RandomInfo returns plausible server info for development.
func RandomInfo() InfoFields {
	maps := []string{"de_dust2", "de_mirage", "de_inferno", "de_nuke", "cs_office", "de_ancient", "de_anubis"}
	osTypes := []byte{'l', 'w'}
	versions := []string{"1.40.1.3", "1.40.2.1", "1.40.3.0"}

	maxPlayers := byte(10 + 2*rand.Intn(11))
	players := byte(rand.Intn(int(maxPlayers) + 1))

	return InfoFields{
		Protocol:    17,
		Name:        fmt.Sprintf("Herald Dev Server #%d [5v5]", rand.Intn(1000)),
		Map:         maps[rand.Intn(len(maps))],
		Folder:      "csgo",
		Game:        "Counter-Strike 2",
		AppID:       730,
		Players:     players,
		MaxPlayers:  maxPlayers,
		Bots:        byte(rand.Intn(int(players) + 1)),
		ServerType:  'd',
		Environment: osTypes[rand.Intn(len(osTypes))],
		Version:     versions[rand.Intn(len(versions))],
		GamePort:    27015,
		Keywords:    "secure,competitive",
	}
}

// DevHandler answers like a busy server: a challenge first, then the info
// response split into several fragments sent out of order.
func DevHandler(info InfoFields, token []byte) Handler {
	response := EncodeInfo(info)
	size := len(response)/3 + 1

	return Challenge(token, Ordered(response, size, 2, 0, 1))
}
