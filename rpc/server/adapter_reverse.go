package server

import (
	"github.com/ValentinKolb/revd/lib/reverse"
)

// NewReverseServerAdapter creates the adapter that replies with the reversed payload
func NewReverseServerAdapter() IRPCServerAdapter {
	return &reverseServerAdapterImpl{}
}

type reverseServerAdapterImpl struct{}

func (adapter *reverseServerAdapterImpl) Handle(req []byte) []byte {
	reverse.InPlace(req)
	return req
}

func (adapter *reverseServerAdapterImpl) Name() string {
	return "reverse"
}
