package signal

import "github.com/dkeye/Stage/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
	m protocol.Ping,
) {
	ctl.sendMessage(conn, protocol.Pong{SentAt: m.SentAt})
}
