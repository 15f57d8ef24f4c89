package wire

import "strconv"

// MsgType is the message type identification carried in Header.MsgType.
// Values are stable; see SPEC_FULL.md §4.8, §6.
type MsgType uint8

const (
	_ MsgType = iota // 0: unused

	// Discovery, stable by value (SPEC_FULL.md §4.8, §4.9).
	MsgAnnounce  // 1: informational broadcast / DISCOVER reply
	MsgDiscover  // 2: query-match discovery request

	// KV lookup/get/set (SPEC_FULL.md §4.2-§4.5, §4.8).
	MsgLookupHash  // 3: resolve hashes to names
	MsgResolvedHash // 4: LOOKUP_HASH reply
	MsgGetKeyMeta  // 5: paginated listing of all parameters
	MsgKeyMeta     // 6: GET_KEY_META reply page
	MsgGetKeys     // 7: request {meta,data} for a hash set
	MsgKeyData     // 8: GET_KEYS / SET_KEYS reply
	MsgSetKeys     // 9: in-place update request

	// Link subsystem (SPEC_FULL.md §4.6-§4.7).
	MsgLink       // 10: link advertisement / acceptance
	MsgLinkData   // 11: published value
	MsgLinkGet    // 12: read link record by index
	MsgLinkMeta   // 13: LINK_GET reply
	MsgLinkAdd    // 14: create a link
	MsgLinkDelete // 15: purge links by tag

	// File transfer (SPEC_FULL.md §4.10).
	MsgFileOpen          // 16: open a session
	MsgFileConfirm       // 17: FILE_OPEN reply
	MsgFileGet           // 18: request next chunk
	MsgFileData          // 19: chunk payload
	MsgFileClose         // 20: close a session
	MsgFileAck           // 21: FILE_CLOSE/FILE_DELETE reply
	MsgFileDelete        // 22: delete a file
	MsgFileCheck         // 23: start checksum task
	MsgFileCheckResponse // 24: checksum task result
	MsgFileList          // 25: paginated directory listing request
	MsgFileListData      // 26: FILE_LIST reply page

	MsgError // 27: error reply
)

var msgTypeNames = map[MsgType]string{
	MsgAnnounce:          "ANNOUNCE",
	MsgDiscover:          "DISCOVER",
	MsgLookupHash:        "LOOKUP_HASH",
	MsgResolvedHash:      "RESOLVED_HASH",
	MsgGetKeyMeta:        "GET_KEY_META",
	MsgKeyMeta:           "KEY_META",
	MsgGetKeys:           "GET_KEYS",
	MsgKeyData:           "KEY_DATA",
	MsgSetKeys:           "SET_KEYS",
	MsgLink:              "LINK",
	MsgLinkData:          "LINK_DATA",
	MsgLinkGet:           "LINK_GET",
	MsgLinkMeta:          "LINK_META",
	MsgLinkAdd:           "LINK_ADD",
	MsgLinkDelete:        "LINK_DELETE",
	MsgFileOpen:          "FILE_OPEN",
	MsgFileConfirm:       "FILE_CONFIRM",
	MsgFileGet:           "FILE_GET",
	MsgFileData:          "FILE_DATA",
	MsgFileClose:         "FILE_CLOSE",
	MsgFileAck:           "FILE_ACK",
	MsgFileDelete:        "FILE_DELETE",
	MsgFileCheck:         "FILE_CHECK",
	MsgFileCheckResponse: "FILE_CHECK_RESPONSE",
	MsgFileList:          "FILE_LIST",
	MsgFileListData:      "FILE_LIST_DATA",
	MsgError:             "ERROR",
}

// String returns the message type's wire name wrapped as "MSG<NAME>", or
// "MSG<n>" with the numeric code for an unknown type.
func (m MsgType) String() string {
	if s, ok := msgTypeNames[m]; ok {
		return "MSG<" + s + ">"
	}
	return "MSG<" + strconv.Itoa(int(m)) + ">"
}
