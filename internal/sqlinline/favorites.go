package sqlinline

const QInsertFavorite = `--sql a9609ab0-1e6d-4ea5-9dea-32672a1ad129
insert into favorite_prompts (id, name, prompt, created_at)
values (gen_random_uuid(), $1, $2, now())
returning id, created_at;
`

const QListFavorites = `--sql 015d1295-8b43-4b8c-86cb-e994bc155c58
select id, name, prompt, created_at
from favorite_prompts
order by created_at desc;
`

const QDeleteFavorite = `--sql 21c04d66-73ce-494b-9702-0e097c930012
delete from favorite_prompts
where id = $1;
`
