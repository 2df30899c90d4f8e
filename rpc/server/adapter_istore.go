package server

import (
	"fmt"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewIStoreServerAdapter creates an adapter translating store messages into calls of s
func NewIStoreServerAdapter(s store.IStore) IRPCServerAdapter {
	return &iStoreServerAdapterImpl{store: s}
}

type iStoreServerAdapterImpl struct {
	store store.IStore
}

func (adapter *iStoreServerAdapterImpl) MessageTypes() []common.MessageType {
	return []common.MessageType{
		common.MsgTKVSet,
		common.MsgTKVDelete,
		common.MsgTKVGet,
		common.MsgTKVHas,
		common.MsgTCommand,
	}
}

func (adapter *iStoreServerAdapterImpl) Handle(_ uint64, req *common.Message) *common.Message {
	if adapter.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	switch req.MsgType {
	case common.MsgTKVSet:
		err := adapter.store.Set(req.Key, req.Value)
		return common.NewSetResponse(err)
	case common.MsgTKVDelete:
		err := adapter.store.Delete(req.Key)
		return common.NewDeleteResponse(err)
	case common.MsgTKVGet:
		val, ok, err := adapter.store.Get(req.Key)
		return common.NewGetResponse(val, ok, err)
	case common.MsgTKVHas:
		ok, err := adapter.store.Has(req.Key)
		return common.NewHasResponse(ok, err)
	case common.MsgTCommand:
		reply, err := adapter.store.Exec(req.Args...)
		return common.NewCommandResponse(reply, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
