package onewire

var (
	defaultServerName  = []byte("onewire")
	defaultContentType = []byte("text/plain; charset=utf-8")
)

var (
	strCRLF            = []byte("\r\n")
	strHTTP11          = []byte("HTTP/1.1")
	strColonSpace      = []byte(": ")

	strGet  = []byte("GET")
	strHead = []byte("HEAD")
	strPost = []byte("POST")

	strContentType = []byte("Content-Type")
	strServer      = []byte("Server")
)
