package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"

	"github.com/pion/turn/v4"

	"github.com/MiiZZo/voicechat/internal/application/config"
)

// Start запускает встроенный TURN-сервер (TCP и UDP listener'ы).
// Аутентификация - static-auth-secret: username это unix-время истечения,
// пароль - HMAC-SHA1 от username, тот же что выдает ice handler.
func Start(cfg *config.TurnConfig) (*turn.Server, error) {
	tcpListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("tcp listen: %w", err)
	}

	udpListener, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("udp listen: %w", err)
	}

	relayAddressGenerator := &turn.RelayAddressGeneratorStatic{
		RelayAddress: net.ParseIP(cfg.PublicIP),
		Address:      "0.0.0.0",
	}

	secret := []byte(cfg.Secret)

	server, err := turn.NewServer(
		turn.ServerConfig{
			Realm: cfg.Realm,
			AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
				mac := hmac.New(sha1.New, secret)
				mac.Write([]byte(username))
				password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

				return turn.GenerateAuthKey(username, realm, password), true
			},
			ListenerConfigs: []turn.ListenerConfig{
				{
					Listener:              tcpListener,
					RelayAddressGenerator: relayAddressGenerator,
				},
			},
			PacketConnConfigs: []turn.PacketConnConfig{
				{
					PacketConn:            udpListener,
					RelayAddressGenerator: relayAddressGenerator,
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("new turn server: %w", err)
	}

	slog.Info(fmt.Sprintf("TURN server started on :%d (TCP, UDP)", cfg.Port))

	return server, nil
}
