package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/risk"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"RSI", TypeRSI, false},
		{"rsi", TypeRSI, false},
		{" Profitable ", TypeProfitable, false},
		{"QullaMaggie", TypeQullaMaggie, false},
		{"qulla_maggie", TypeQullaMaggie, false},
		{"macd", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownStrategy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	for _, typ := range Types() {
		t.Run(string(typ), func(t *testing.T) {
			s, err := New(typ, Params{}, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, typ, s.Type())
			assert.Equal(t, candle.DefaultWindowSize, s.WarmupPeriod())
			assert.NotNil(t, s.ExitRule())
		})
	}

	t.Run("Unknown type", func(t *testing.T) {
		_, err := New("DCA", Params{}, nil, nil)
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})

	t.Run("Invalid params", func(t *testing.T) {
		_, err := New(TypeRSI, Params{RSIOversold: 80, RSIOverbought: 70}, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidParams)

		_, err = New(TypeProfitable, Params{MACDFast: 30, MACDSlow: 26}, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidParams)

		_, err = New(TypeQullaMaggie, Params{EMAFast: -1}, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidParams)

		sl := 150.0
		_, err = New(TypeRSI, Params{StopLossPct: &sl}, nil, nil)
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("Long periods extend warmup", func(t *testing.T) {
		s, err := New(TypeRSI, Params{RSIPeriod: 60}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 61, s.WarmupPeriod())

		s, err = New(TypeQullaMaggie, Params{EMASlow: 100}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 100, s.WarmupPeriod())
	})
}

func TestInsufficientHistory(t *testing.T) {
	for _, typ := range Types() {
		t.Run(string(typ), func(t *testing.T) {
			provider := &mockProvider{}
			s, err := New(typ, Params{}, provider, nil)
			require.NoError(t, err)

			_, err = s.Analyze(flatWindow(49, 100), NewState())
			assert.ErrorIs(t, err, ErrInsufficientHistory)
			assert.Empty(t, provider.Calls)
		})
	}

	t.Run("Mismatched arrays", func(t *testing.T) {
		s, err := New(TypeRSI, Params{}, nil, nil)
		require.NoError(t, err)
		w := flatWindow(50, 1)
		w.High = w.High[:10]
		_, err = s.Analyze(w, nil)
		assert.ErrorIs(t, err, indicator.ErrLengthMismatch)
	})
}

func TestExitRules(t *testing.T) {
	entry := &risk.EntryPosition{EntryPrice: 100}

	t.Run("RSI has no default bands", func(t *testing.T) {
		s, err := New(TypeRSI, Params{}, nil, nil)
		require.NoError(t, err)
		pos, err := s.ExitRule().Check(flatWindow(50, 50), entry)
		require.NoError(t, err)
		assert.False(t, pos.Selling)
	})

	t.Run("RSI bands from params", func(t *testing.T) {
		sl := 10.0
		s, err := New(TypeRSI, Params{StopLossPct: &sl}, nil, nil)
		require.NoError(t, err)
		pos, err := s.ExitRule().Check(flatWindow(50, 90), entry)
		require.NoError(t, err)
		assert.True(t, pos.Selling)
	})

	t.Run("Profitable defaults to 3 and 5", func(t *testing.T) {
		s, err := New(TypeProfitable, Params{}, nil, nil)
		require.NoError(t, err)

		pos, err := s.ExitRule().Check(flatWindow(50, 97), entry)
		require.NoError(t, err)
		assert.True(t, pos.Selling)
		assert.Contains(t, pos.Reason, "stop loss")

		pos, err = s.ExitRule().Check(flatWindow(50, 104.99), entry)
		require.NoError(t, err)
		assert.False(t, pos.Selling)

		pos, err = s.ExitRule().Check(flatWindow(50, 105), entry)
		require.NoError(t, err)
		assert.True(t, pos.Selling)
	})

	t.Run("Profitable bands can be disabled", func(t *testing.T) {
		zero := 0.0
		s, err := New(TypeProfitable, Params{StopLossPct: &zero, TakeProfitPct: &zero}, nil, nil)
		require.NoError(t, err)
		pos, err := s.ExitRule().Check(flatWindow(50, 50), entry)
		require.NoError(t, err)
		assert.False(t, pos.Selling)
	})

	t.Run("QullaMaggie exits below fast EMA", func(t *testing.T) {
		s, err := New(TypeQullaMaggie, Params{}, nil, nil)
		require.NoError(t, err)

		w := flatWindow(50, 100)
		pos, err := s.ExitRule().Check(w, entry)
		require.NoError(t, err)
		assert.False(t, pos.Selling)

		w.Close[49] = 95
		w.Low[49] = 95
		pos, err = s.ExitRule().Check(w, entry)
		require.NoError(t, err)
		assert.True(t, pos.Selling)
		assert.Contains(t, pos.Reason, "EMA10")
	})
}

func TestParams_WithDefaults(t *testing.T) {
	p := Params{RSIPeriod: 7}.WithDefaults()
	assert.Equal(t, 7, p.RSIPeriod)
	assert.Equal(t, DefaultRSIOversold, p.RSIOversold)
	assert.Equal(t, DefaultMACDSlow, p.MACDSlow)
	assert.Equal(t, DefaultCrossThreshold, p.CrossThreshold)
	assert.Nil(t, p.StopLossPct)
	assert.Equal(t, risk.Params{StopLossPct: 1, TakeProfitPct: 2}, p.RiskParams(risk.Params{StopLossPct: 1, TakeProfitPct: 2}))
}
