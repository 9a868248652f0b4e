package ethereum

// registryABIJSON 描述 Agent 注册合约的最小接口。
const registryABIJSON = `[
  {"type":"function","name":"register","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"authorize","stateMutability":"nonpayable","inputs":[
    {"name":"grantee","type":"address"},
    {"name":"permissions","type":"string[]"}
  ],"outputs":[]},
  {"type":"function","name":"setLimits","stateMutability":"nonpayable","inputs":[
    {"name":"perTransaction","type":"uint256"},
    {"name":"daily","type":"uint256"},
    {"name":"monthly","type":"uint256"}
  ],"outputs":[]},
  {"type":"function","name":"revoke","stateMutability":"nonpayable","inputs":[
    {"name":"grantee","type":"address"}
  ],"outputs":[]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[
    {"name":"owner","type":"address"}
  ],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[
    {"name":"to","type":"address"},
    {"name":"value","type":"uint256"}
  ],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`
