package wire

// Game protocol opcodes (family FamilyGame), spec.md §4.5, §4.6, §6.
const (
	OpPingFromHost       byte = 0x01
	OpSlotInfoJoin       byte = 0x04
	OpRejectJoin         byte = 0x05
	OpPlayerInfo         byte = 0x06
	OpPlayerLeaveOthers  byte = 0x07
	OpSlotInfo           byte = 0x09
	OpCountdownStart     byte = 0x0A
	OpCountdownEnd       byte = 0x0B
	OpIncomingAction     byte = 0x0C
	OpChatFromHost       byte = 0x0F
	OpStartLag           byte = 0x10
	OpStopLag            byte = 0x11
	OpGameLoadedOthers   byte = 0x21
	OpGameOver           byte = 0x23
	OpIncomingAction2    byte = 0x48

	OpReqJoin          byte = 0x1E
	OpLeaveGame        byte = 0x21
	OpGameLoadedSelf   byte = 0x23
	OpOutgoingAction   byte = 0x26
	OpOutgoingKeepalive byte = 0x27
	OpChatToHost       byte = 0x28
	OpDropReq          byte = 0x2B
	OpMapSize          byte = 0x2E
	OpPongToHost       byte = 0x46

	OpMapPart     byte = 0x2F
	OpMapPartOK   byte = 0x30
	OpMapPartFail byte = 0x31
	OpStartDownload byte = 0x2C

	// LAN/realm discovery range (UDP, family FamilyGame), spec.md §6.
	OpSearchGame   byte = 0x2F
	OpGameInfo     byte = 0x30
	OpCreateGame   byte = 0x31
	OpRefreshGame  byte = 0x32
	OpDecreateGame byte = 0x33
)

// GProxy reconnection opcodes (family FamilyGPS), spec.md §4.7, §6.
const (
	OpGPSInit            byte = 0x01
	OpGPSReconnect       byte = 0x02
	OpGPSAck             byte = 0x03
	OpGPSReject          byte = 0x04
	OpGPSInitUDPSyn      byte = 0x05
	OpGPSUDPAck          byte = 0x06
	OpGPSSupportExtended byte = 0x07
)

// Reconnect-reject reasons, spec.md §6.
const (
	GPSRejectInvalid  uint32 = 1
	GPSRejectNotFound uint32 = 2
)

// Join-rejection reasons, spec.md §7.
const (
	RejectFull         byte = 9
	RejectStarted      byte = 10
	RejectWrongPassword byte = 27
)

// Realm protocol opcodes (family FamilyRealm), spec.md §6.
const (
	SIDAuthInfo           byte = 0x50
	SIDAuthCheck          byte = 0x51
	SIDAuthAccountLogon   byte = 0x53
	SIDAuthAccountLogonProof byte = 0x54
	SIDEnterChat          byte = 0x0A
	SIDJoinChannel        byte = 0x0C
	SIDChatEvent          byte = 0x0F
	SIDStartAdvex3        byte = 0x1C
	SIDStopAdv            byte = 0x02
	SIDGetAdvListEx       byte = 0x09
	SIDPing               byte = 0x25
	SIDNetGamePort        byte = 0x45
	SIDPublicHost         byte = 0x1B
	SIDFriendList         byte = 0x65
	SIDClanMemberList     byte = 0x7D
)

// ProtocolSelector is the single byte 0x01 sent once at the start of a
// realm session, before the first SID_AUTH_INFO (spec.md §6).
const ProtocolSelector byte = 0x01

// ChatEventID is the SID_CHATEVENT sub-type carried in its id field.
type ChatEventID uint32

const (
	ChatEventChannelJoin ChatEventID = 0x02
	ChatEventJoinUser    ChatEventID = 0x03
	ChatEventLeaveUser   ChatEventID = 0x04
	ChatEventWhisper     ChatEventID = 0x05
	ChatEventTalk        ChatEventID = 0x06
	ChatEventBroadcast   ChatEventID = 0x07
	ChatEventChannel     ChatEventID = 0x09
	ChatEventUserFlags   ChatEventID = 0x0A
	ChatEventWhisperSent ChatEventID = 0x0E
	ChatEventInfo        ChatEventID = 0x12
	ChatEventErrorMsg    ChatEventID = 0x13
	ChatEventEmote       ChatEventID = 0x17
)
