package rpc

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

func TestLogFilter_Builder(t *testing.T) {
	topic := common.HexToHash("0xaaaa")
	f := NewLogFilter().
		AddContract(common.HexToAddress("0x1111")).
		AddContract(common.HexToAddress("0x2222")).
		SetTopic(0, topic)
	assert.Len(t, f.Addresses, 2)
	assert.Len(t, f.Topics.Groups(), 1)

	// Setting position 2 leaves position 1 as a wildcard.
	f.SetTopic(2, topic)
	groups := f.Topics.Groups()
	assert.Len(t, groups, 3)
	assert.Nil(t, groups[1])
	assert.Len(t, groups[2], 1)

	arg := f.toArg(BlockNumber(100), BlockNumber(200))
	assert.Equal(t, "0x64", arg.FromBlock)
	assert.Equal(t, "0xc8", arg.ToBlock)
	assert.Len(t, arg.Address, 2)
}

func TestLogFilter_CopyIsIndependent(t *testing.T) {
	t1, t2, t3 := common.HexToHash("0x1"), common.HexToHash("0x2"), common.HexToHash("0x3")
	a := NewLogFilter().SetTopic(0, t1).SetTopic(1, t2)
	a.Addresses = make([]common.Address, 1, 4)

	b := *a
	b.SetTopic(0, t3).SetTopic(3, t3)
	b.AddContract(common.HexToAddress("0x4444"))

	assert.Equal(t, [][]common.Hash{{t1}, {t2}}, a.Topics.Groups())
	assert.Len(t, a.Addresses, 1)
	assert.Equal(t, common.Address{}, a.Addresses[:2][1], "spare capacity of the original was written")
	assert.Equal(t, [][]common.Hash{{t1, t3}, {t2}, nil, {t3}}, b.Topics.Groups())
	assert.Len(t, b.Addresses, 2)

	// Growing the original leaves the copy alone as well.
	a.SetTopic(1, t1)
	assert.Equal(t, []common.Hash{t2}, b.Topics.Groups()[1])
}

func TestTopics_JSON(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")

	assert.JSONEq(t,
		`["`+a.Hex()+`",null,"`+b.Hex()+`"]`,
		paramJSON(PlainTopics(&a, nil, &b)))
	assert.JSONEq(t,
		`[["`+a.Hex()+`","`+b.Hex()+`"],null,["`+b.Hex()+`"]]`,
		paramJSON(OrTopics([]common.Hash{a, b}, nil, []common.Hash{b})))

	assert.True(t, Topics{}.IsEmpty())
	assert.False(t, PlainTopics(nil).IsEmpty())
}

func TestLogFilter_IsHeavy(t *testing.T) {
	f := NewLogFilter()
	assert.False(t, f.IsHeavy())

	for i := 0; i < 21; i++ {
		f.AddContract(common.HexToAddress("0x1"))
	}
	assert.True(t, f.IsHeavy())

	f = NewLogFilter().SetTopic(0, make([]common.Hash, 21)...)
	assert.True(t, f.IsHeavy())
}

func TestLogFilter_MatchesBloom(t *testing.T) {
	addr1 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	topic1 := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	other := common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	bloom := types.Bloom{}
	bloom.Add(addr1.Bytes())
	bloom.Add(topic1.Bytes())

	assert.True(t, NewLogFilter().MatchesBloom(bloom))
	assert.True(t, NewLogFilter().AddContract(addr1).MatchesBloom(bloom))
	assert.False(t, NewLogFilter().AddContract(common.HexToAddress("0x2222222222222222222222222222222222222222")).MatchesBloom(bloom))

	assert.True(t, NewLogFilter().SetTopic(0, topic1).MatchesBloom(bloom))
	assert.False(t, NewLogFilter().SetTopic(0, other).MatchesBloom(bloom))

	// Address and topics are ANDed.
	assert.True(t, NewLogFilter().AddContract(addr1).SetTopic(0, topic1).MatchesBloom(bloom))
	assert.False(t, NewLogFilter().AddContract(addr1).SetTopic(0, other).MatchesBloom(bloom))

	// Plain topics use the same check.
	assert.True(t, LogFilter{Topics: PlainTopics(nil, &topic1)}.MatchesBloom(bloom))
	assert.False(t, LogFilter{Topics: PlainTopics(&other)}.MatchesBloom(bloom))
}
