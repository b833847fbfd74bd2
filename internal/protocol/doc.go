// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package protocol defines the message envelope spoken on kernel channels.

Every message carries a header (id, session, type), the header of the
request it answers, free-form metadata and a typed content payload:

	req, _ := protocol.NewRequest(session, "kernelkit", protocol.MsgObjectInfoRequest,
	    protocol.ObjectInfoRequest{Oname: "a"})

Messages are framed as one JSON document per line by Codec and signed
with HMAC-SHA256 when the connection descriptor carries a key.
*/
package protocol
